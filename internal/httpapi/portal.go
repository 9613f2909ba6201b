package httpapi

import (
	"net"
	"net/http"
	"strings"
)

const (
	PortalPatient   = "patient"
	PortalDashboard = "dashboard"
	PortalDoctor    = "doctor"
	PortalTV        = "tv"
)

type Portal struct {
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	TVLayout string `json:"tv_layout,omitempty"`
}

// ResolvePortal maps a request host to the portal it serves. The bare domain
// and www are the patient portal, app is the dashboard, doc is the doctor panel
// and tvN is a waiting-room screen using layout N. Unknown hosts get the
// dashboard.
func ResolvePortal(host, domain string) Portal {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	domain = strings.ToLower(strings.TrimSpace(domain))

	sub := ""
	switch {
	case domain != "" && host == domain:
	case domain != "" && strings.HasSuffix(host, "."+domain):
		sub = strings.TrimSuffix(host, "."+domain)
	default:
		return Portal{Kind: PortalDashboard, Path: "/"}
	}

	switch {
	case sub == "" || sub == "www":
		return Portal{Kind: PortalPatient, Path: "/login"}
	case sub == "app":
		return Portal{Kind: PortalDashboard, Path: "/"}
	case sub == "doc":
		return Portal{Kind: PortalDoctor, Path: "/admin"}
	case strings.HasPrefix(sub, "tv"):
		layout := strings.TrimPrefix(sub, "tv")
		if layout == "" {
			layout = "1"
		}
		path := "/admin/tv-display"
		if layout != "1" {
			path += "?layout=" + layout
		}
		return Portal{Kind: PortalTV, Path: path, TVLayout: layout}
	default:
		return Portal{Kind: PortalDashboard, Path: "/"}
	}
}

func (h *Handler) handlePortal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	host := r.Host
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	writeJSON(w, http.StatusOK, ResolvePortal(host, h.portalDomain))
}
