package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(id string) *Client {
	return &Client{ID: id, Send: make(chan []byte, 1)}
}

func TestBroadcastMatchesSubscription(t *testing.T) {
	h := New()
	morning := newClient("morning")
	evening := newClient("evening")
	active := newClient("active")
	idle := newClient("idle")
	for _, c := range []*Client{morning, evening, active, idle} {
		h.Register(c)
	}
	h.Subscribe(morning, Subscription{Session: "morning"})
	h.Subscribe(evening, Subscription{Session: "evening"})
	h.Subscribe(active, Subscription{})

	delivered := h.Broadcast([]byte("board"), Subscription{Session: "morning"})
	assert.Equal(t, 1, delivered)
	assert.Len(t, morning.Send, 1)
	assert.Empty(t, active.Send)
	assert.Empty(t, evening.Send)
	assert.Empty(t, idle.Send)

	delivered = h.Broadcast([]byte("board"), Subscription{})
	assert.Equal(t, 1, delivered)
	assert.Len(t, active.Send, 1)
}

func TestBroadcastToPatientSubscriber(t *testing.T) {
	h := New()
	board := newClient("board")
	mine := newClient("mine")
	other := newClient("other")
	for _, c := range []*Client{board, mine, other} {
		h.Register(c)
	}
	h.Subscribe(board, Subscription{Session: "morning"})
	h.Subscribe(mine, Subscription{Session: "morning", PatientID: "p-1"})
	h.Subscribe(other, Subscription{PatientID: "p-2"})

	assert.Equal(t, 1, h.Broadcast([]byte("board"), Subscription{Session: "morning"}))
	assert.Len(t, board.Send, 1)
	assert.Empty(t, mine.Send)

	assert.Equal(t, 1, h.Broadcast([]byte("status"), Subscription{PatientID: "p-1"}))
	assert.Equal(t, "status", string(<-mine.Send))
	assert.Empty(t, other.Send)

	assert.Equal(t, []string{"morning"}, h.Sessions())
	assert.ElementsMatch(t, []string{"p-1", "p-2"}, h.Patients())
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	h := New()
	c := newClient("slow")
	h.Register(c)
	h.Subscribe(c, Subscription{})

	assert.Equal(t, 1, h.Broadcast([]byte("one"), Subscription{}))
	assert.Equal(t, 0, h.Broadcast([]byte("two"), Subscription{}))
	assert.Equal(t, "one", string(<-c.Send))
}

func TestUnregisterClosesOnce(t *testing.T) {
	h := New()
	c := newClient("c1")
	h.Register(c)
	require.Equal(t, 1, h.Len())

	h.Unregister(c)
	h.Unregister(c)
	assert.Equal(t, 0, h.Len())
	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestSessions(t *testing.T) {
	h := New()
	a, b, c := newClient("a"), newClient("b"), newClient("c")
	for _, client := range []*Client{a, b, c} {
		h.Register(client)
	}
	h.Subscribe(a, Subscription{Session: "morning"})
	h.Subscribe(b, Subscription{Session: "morning"})

	assert.Equal(t, []string{"morning"}, h.Sessions())
	h.Unsubscribe(a)
	h.Unsubscribe(b)
	assert.Empty(t, h.Sessions())
}

func TestParseSubscribe(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		ok      bool
		session string
	}{
		{"subscribe all", `{"action":"subscribe"}`, true, ""},
		{"subscribe session", `{"action":"subscribe","session":" Evening "}`, true, "evening"},
		{"unsubscribe", `{"action":"unsubscribe"}`, true, ""},
		{"unknown session", `{"action":"subscribe","session":"night"}`, false, ""},
		{"unknown action", `{"action":"ping"}`, false, ""},
		{"not json", `subscribe`, false, ""},
		{"patient", `{"action":"subscribe","patient_id":"1b4e28ba-2fa1-11d2-883f-0016d3cca427"}`, true, ""},
		{"bad patient id", `{"action":"subscribe","patient_id":"nope"}`, false, ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseSubscribe([]byte(tt.payload))
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.session, msg.Session)
			}
		})
	}
}
