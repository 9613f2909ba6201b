package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/clinic"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/events"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/hub"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/logging"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/queue"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const (
	MessageBoard         = "board"
	MessagePatientStatus = "patient_status"

	defaultDebounce = 250 * time.Millisecond
	boardTimeout    = 5 * time.Second
)

type boardMessage struct {
	Type    string      `json:"type"`
	Session string      `json:"session"`
	Board   queue.Board `json:"board"`
}

type patientMessage struct {
	Type      string               `json:"type"`
	PatientID string               `json:"patient_id"`
	Status    clinic.PatientStatus `json:"status"`
}

// Broadcaster recomputes the board after queue changes and pushes it to
// subscribed displays.
type Broadcaster struct {
	clinic   Clinic
	hub      *hub.Hub
	debounce time.Duration
}

func NewBroadcaster(c Clinic, h *hub.Hub, debounce time.Duration) *Broadcaster {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Broadcaster{clinic: c, hub: h, debounce: debounce}
}

// Run coalesces bus events that arrive within the debounce window into one
// push. It returns when ctx ends or the bus closes.
func (b *Broadcaster) Run(ctx context.Context, bus events.Bus) error {
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub:
			if !ok {
				return nil
			}
			if fire == nil {
				fire = time.After(b.debounce)
			}
		case <-fire:
			fire = nil
			b.Push(ctx)
		}
	}
}

// Push sends one freshly computed board per subscribed session and one status
// per followed patient, and returns how many messages were queued.
func (b *Broadcaster) Push(ctx context.Context) int {
	sent := 0
	for _, session := range b.hub.Sessions() {
		payload, err := b.render(ctx, session)
		if err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("session", session).Msg("render board")
			continue
		}
		sent += b.hub.Broadcast(payload, hub.Subscription{Session: session})
	}
	for _, patientID := range b.hub.Patients() {
		payload, err := b.renderPatient(ctx, patientID)
		if err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("patient_id", patientID).Msg("render patient status")
			continue
		}
		sent += b.hub.Broadcast(payload, hub.Subscription{PatientID: patientID})
	}
	if sent > 0 {
		pushesSent.Add(int64(sent))
	}
	return sent
}

func (b *Broadcaster) render(ctx context.Context, session string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, boardTimeout)
	defer cancel()
	board, err := b.clinic.Board(ctx, session)
	if err != nil {
		return nil, err
	}
	boardsComputed.Add(1)
	return json.Marshal(boardMessage{Type: MessageBoard, Session: session, Board: board})
}

func (b *Broadcaster) renderPatient(ctx context.Context, patientID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, boardTimeout)
	defer cancel()
	status, err := b.clinic.PatientStatus(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(patientMessage{Type: MessagePatientStatus, PatientID: patientID, Status: status})
}

func (b *Broadcaster) renderFor(ctx context.Context, sub hub.Subscription) ([]byte, error) {
	if sub.PatientID != "" {
		return b.renderPatient(ctx, sub.PatientID)
	}
	return b.render(ctx, sub.Session)
}

// RealtimeHandler serves the sockjs endpoint displays connect to. A display
// sends {"action":"subscribe","session":"morning"} and receives the current
// board at once, then again after every queue change. A patient screen sends
// a patient_id instead and receives that patient's status.
func (b *Broadcaster) RealtimeHandler(prefix string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		client := &hub.Client{
			ID:        uuid.NewString(),
			DisplayID: displayIDFromRequest(req),
			Send:      make(chan []byte, 16),
		}
		b.hub.Register(client)
		defer b.hub.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == hub.ActionUnsubscribe {
				b.hub.Unsubscribe(client)
				continue
			}
			sub := hub.Subscription{Session: parsed.Session, PatientID: parsed.PatientID}
			b.hub.Subscribe(client, sub)
			payload, err := b.renderFor(context.Background(), sub)
			if err != nil {
				logging.FromContext(req.Context()).Warn().Err(err).Str("client_id", client.ID).Msg("initial update")
				continue
			}
			_ = session.Send(string(payload))
		}
	})
}
