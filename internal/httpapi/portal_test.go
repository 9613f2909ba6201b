package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePortal(t *testing.T) {
	cases := []struct {
		host string
		want Portal
	}{
		{"shantiq.in", Portal{Kind: PortalPatient, Path: "/login"}},
		{"www.shantiq.in", Portal{Kind: PortalPatient, Path: "/login"}},
		{"app.shantiq.in", Portal{Kind: PortalDashboard, Path: "/"}},
		{"doc.shantiq.in:443", Portal{Kind: PortalDoctor, Path: "/admin"}},
		{"tv1.shantiq.in", Portal{Kind: PortalTV, Path: "/admin/tv-display", TVLayout: "1"}},
		{"TV2.Shantiq.in", Portal{Kind: PortalTV, Path: "/admin/tv-display?layout=2", TVLayout: "2"}},
		{"tv.shantiq.in", Portal{Kind: PortalTV, Path: "/admin/tv-display", TVLayout: "1"}},
		{"shantiq.vercel.app", Portal{Kind: PortalDashboard, Path: "/"}},
		{"localhost:3000", Portal{Kind: PortalDashboard, Path: "/"}},
	}
	for _, tt := range cases {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePortal(tt.host, "shantiq.in"))
		})
	}
}

func TestPortalHandlerPrefersForwardedHost(t *testing.T) {
	h := newTestHandler(fakeClinic{})
	req := httptest.NewRequest(http.MethodGet, "/api/portal", nil)
	req.Host = "internal:8080"
	req.Header.Set("X-Forwarded-Host", "doc.shantiq.in, proxy")
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var portal Portal
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&portal))
	assert.Equal(t, PortalDoctor, portal.Kind)
}
