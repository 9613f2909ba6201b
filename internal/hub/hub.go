// Package hub tracks connected display clients and fans board updates out to
// the ones whose subscription matches.
package hub

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Subscription filters broadcasts. A client with a PatientID receives only that
// patient's status messages. Otherwise it receives boards for Session, where an
// empty Session follows whichever session is active.
type Subscription struct {
	Session   string
	PatientID string
}

type Client struct {
	ID           string
	DisplayID    string
	Send         chan []byte
	Subscription Subscription
	subscribed   bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	Session   string `json:"session"`
	PatientID string `json:"patient_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
	client.subscribed = true
}

func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = Subscription{}
	client.subscribed = false
}

// Len is the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Sessions lists the sessions at least one board subscriber wants. An empty
// string in the result means some client follows the active session.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[string]bool{}
	var sessions []string
	for _, client := range h.clients {
		if !client.subscribed || client.Subscription.PatientID != "" || seen[client.Subscription.Session] {
			continue
		}
		seen[client.Subscription.Session] = true
		sessions = append(sessions, client.Subscription.Session)
	}
	return sessions
}

// Patients lists the patient ids that subscribed clients follow.
func (h *Hub) Patients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[string]bool{}
	var ids []string
	for _, client := range h.clients {
		id := client.Subscription.PatientID
		if !client.subscribed || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Broadcast(payload []byte, meta Subscription) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if !client.subscribed || !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			log.Warn().Str("client_id", client.ID).Str("display_id", client.DisplayID).Msg("drop message for slow client")
		}
	}
	return delivered
}

func match(sub Subscription, meta Subscription) bool {
	if sub.PatientID != "" || meta.PatientID != "" {
		return sub.PatientID == meta.PatientID
	}
	return meta.Session == sub.Session
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != ActionSubscribe && msg.Action != ActionUnsubscribe {
		return SubscribeMessage{}, false
	}
	msg.Session = strings.ToLower(strings.TrimSpace(msg.Session))
	switch msg.Session {
	case "", models.SessionMorning, models.SessionEvening:
	default:
		return SubscribeMessage{}, false
	}
	msg.PatientID = strings.TrimSpace(msg.PatientID)
	if msg.PatientID != "" {
		if _, err := uuid.Parse(msg.PatientID); err != nil {
			return SubscribeMessage{}, false
		}
	}
	return msg, true
}
