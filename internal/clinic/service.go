// Package clinic runs the queue pipeline against the store and publishes a
// change event after every write.
package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/events"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/logging"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/queue"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/store"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

const dateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

type Options struct {
	LatePenalty      int
	AutoOfflineAfter time.Duration
	Now              func() time.Time
}

type Service struct {
	store            store.ClinicStore
	bus              events.Bus
	latePenalty      int
	autoOfflineAfter time.Duration
	now              func() time.Time
}

func New(st store.ClinicStore, bus events.Bus, options Options) *Service {
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	after := options.AutoOfflineAfter
	if after <= 0 {
		after = 2 * time.Hour
	}
	return &Service{
		store:            st,
		bus:              bus,
		latePenalty:      options.LatePenalty,
		autoOfflineAfter: after,
		now:              now,
	}
}

type PatientStatus struct {
	Patient     models.Patient `json:"patient"`
	Session     string         `json:"session,omitempty"`
	Position    int            `json:"position"`
	PeopleAhead int            `json:"people_ahead"`
	UpNext      bool           `json:"up_next"`
	ETC         *queue.ETC     `json:"etc,omitempty"`
}

type BookInput struct {
	RequestID       string
	Name            string
	Phone           string
	VisitType       string
	Session         string
	AppointmentTime time.Time
	CheckIn         bool
}

type ActInput struct {
	RequestID   string
	PatientID   string
	Action      string
	LateBy      int
	LatePenalty int
}

type AdvanceResult struct {
	Completed *models.Patient `json:"completed,omitempty"`
	Started   *models.Patient `json:"started,omitempty"`
}

// Board computes the live board for session, or for the active session when
// session is empty.
func (s *Service) Board(ctx context.Context, session string) (queue.Board, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "clinic.board")
	defer span.End()

	now := s.now()
	snapshot, err := s.daySnapshot(ctx, now)
	if err != nil {
		span.RecordError(err)
		return queue.Board{}, err
	}
	board, err := queue.Compute(snapshot, now, s.queueOptions(session))
	if err != nil {
		span.RecordError(err)
		return queue.Board{}, err
	}
	span.SetAttributes(
		attribute.String("clinic.session", board.Session),
		attribute.Bool("clinic.closed", board.Closed),
		attribute.Int("clinic.queue_length", len(board.Queue)),
	)
	if len(board.Anomalies) > 0 {
		span.SetAttributes(attribute.Int("clinic.anomalies", len(board.Anomalies)))
	}
	return board, nil
}

// Stats summarises the requested session, or the active one, of today.
func (s *Service) Stats(ctx context.Context, session string) (queue.Stats, error) {
	now := s.now()
	snapshot, err := s.daySnapshot(ctx, now)
	if err != nil {
		return queue.Stats{}, err
	}
	day, open, err := schedule.Resolve(snapshot.Schedule, now)
	if err != nil {
		return queue.Stats{}, err
	}
	if !open {
		return queue.Stats{Session: session, ByVisitType: map[string]int{}}, nil
	}
	var (
		w  schedule.Window
		ok bool
	)
	if session != "" {
		w, ok = day.Session(session)
	} else {
		w, ok = schedule.ActiveSession(day, now, snapshot.Status)
	}
	if !ok {
		return queue.Stats{Session: session, ByVisitType: map[string]int{}}, nil
	}
	return queue.SessionStats(snapshot.Patients, w), nil
}

func (s *Service) PatientStatus(ctx context.Context, patientID string) (PatientStatus, error) {
	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return PatientStatus{}, err
	}
	status := PatientStatus{Patient: patient}
	if !patient.IsLive() {
		return status, nil
	}

	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return PatientStatus{}, err
	}
	day, open, err := schedule.Resolve(sched, s.now())
	if err != nil {
		return PatientStatus{}, err
	}
	if !open {
		return status, nil
	}
	session, ok := day.SessionAt(patient.AppointmentTime)
	if !ok {
		return status, nil
	}
	status.Session = session

	board, err := s.Board(ctx, session)
	if err != nil {
		return PatientStatus{}, err
	}
	entry, found := board.Find(patientID)
	if !found {
		return status, nil
	}
	status.Patient = entry.Patient
	status.Position = entry.Position
	if entry.Position > 0 {
		status.PeopleAhead = entry.Position - 1
		status.UpNext = entry.Position == 1
	}
	if etc, ok := board.ETCs[patientID]; ok {
		status.ETC = &etc
	}
	return status, nil
}

// ResolveDate returns the sessions open on a YYYY-MM-DD date in the clinic's
// timezone.
func (s *Service) ResolveDate(ctx context.Context, date string) (schedule.Day, bool, error) {
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return schedule.Day{}, false, err
	}
	loc, err := schedule.Location(sched)
	if err != nil {
		return schedule.Day{}, false, err
	}
	at := s.now().In(loc)
	if date = strings.TrimSpace(date); date != "" {
		parsed, err := time.ParseInLocation(dateLayout, date, loc)
		if err != nil {
			return schedule.Day{}, false, fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
		at = parsed.Add(12 * time.Hour)
	}
	return schedule.Resolve(sched, at)
}

func (s *Service) Schedule(ctx context.Context) (models.DoctorSchedule, error) {
	return s.store.GetSchedule(ctx)
}

func (s *Service) SaveSchedule(ctx context.Context, sched models.DoctorSchedule) error {
	if err := schedule.Validate(sched); err != nil {
		return err
	}
	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.TypeQueueChanged, Action: "schedule"})
	return nil
}

// Book creates a patient with the next token of the session the appointment
// falls in, or of the requested or active session when no time is given.
func (s *Service) Book(ctx context.Context, input BookInput) (models.Patient, bool, error) {
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return models.Patient{}, false, err
	}

	var window schedule.Window
	if !input.AppointmentTime.IsZero() {
		day, open, err := schedule.Resolve(sched, input.AppointmentTime)
		if err != nil {
			return models.Patient{}, false, err
		}
		name, ok := day.SessionAt(input.AppointmentTime)
		if !open || !ok {
			return models.Patient{}, false, store.ErrSessionClosed
		}
		window, _ = day.Session(name)
	} else {
		now := s.now()
		day, open, err := schedule.Resolve(sched, now)
		if err != nil {
			return models.Patient{}, false, err
		}
		if !open {
			return models.Patient{}, false, store.ErrSessionClosed
		}
		var ok bool
		if input.Session != "" {
			window, ok = day.Session(input.Session)
		} else {
			status, err := s.store.GetDoctorStatus(ctx)
			if err != nil {
				return models.Patient{}, false, err
			}
			window, ok = schedule.ActiveSession(day, now, status)
		}
		if !ok {
			return models.Patient{}, false, store.ErrSessionClosed
		}
	}

	patient, created, err := s.store.CreatePatient(ctx, store.CreatePatientInput{
		RequestID:       input.RequestID,
		Name:            input.Name,
		Phone:           input.Phone,
		VisitType:       input.VisitType,
		SessionStart:    window.Start,
		SessionEnd:      window.End,
		SlotMinutes:     sched.SlotDuration,
		AppointmentTime: input.AppointmentTime,
		CheckIn:         input.CheckIn,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return models.Patient{}, false, err
	}
	if created {
		s.publish(ctx, events.Event{Type: events.TypeQueueChanged, PatientID: patient.ID, Action: "book"})
	}
	return patient, created, nil
}

// Act applies one patient action. Starting a consultation is refused while
// another patient of the same session is in consultation.
func (s *Service) Act(ctx context.Context, input ActInput) (models.Patient, bool, error) {
	action := store.PatientActionInput{
		RequestID:   input.RequestID,
		PatientID:   input.PatientID,
		Action:      input.Action,
		LateBy:      input.LateBy,
		LatePenalty: input.LatePenalty,
		OccurredAt:  s.now(),
	}
	if input.Action == store.ActionStart {
		window, err := s.sessionOf(ctx, input.PatientID)
		if err != nil {
			return models.Patient{}, false, err
		}
		action.SessionStart = window.Start
		action.SessionEnd = window.End
	}

	patient, changed, err := s.store.ApplyAction(ctx, action)
	if err != nil {
		return models.Patient{}, false, err
	}
	if changed {
		s.publish(ctx, events.Event{Type: events.TypeQueueChanged, PatientID: patient.ID, Action: input.Action})
	}
	return patient, changed, nil
}

// Advance completes the patient in consultation and starts the up-next one.
func (s *Service) Advance(ctx context.Context, requestID, session string) (AdvanceResult, error) {
	board, err := s.Board(ctx, session)
	if err != nil {
		return AdvanceResult{}, err
	}
	if board.Closed {
		return AdvanceResult{}, store.ErrSessionClosed
	}

	var result AdvanceResult
	if board.InConsultation != nil {
		done, _, err := s.Act(ctx, ActInput{
			RequestID: scopedRequestID(requestID, store.ActionComplete),
			PatientID: board.InConsultation.ID,
			Action:    store.ActionComplete,
		})
		if err != nil {
			return AdvanceResult{}, err
		}
		result.Completed = &done
	}
	if board.UpNext != nil {
		started, _, err := s.Act(ctx, ActInput{
			RequestID: scopedRequestID(requestID, store.ActionStart),
			PatientID: board.UpNext.ID,
			Action:    store.ActionStart,
		})
		if err != nil {
			return result, err
		}
		result.Started = &started
	}
	return result, nil
}

func (s *Service) SetDoctorStatus(ctx context.Context, input store.DoctorStatusInput) (models.DoctorStatus, error) {
	if input.OccurredAt.IsZero() {
		input.OccurredAt = s.now()
	}
	status, err := s.store.UpdateDoctorStatus(ctx, input)
	if err != nil {
		return models.DoctorStatus{}, err
	}
	s.publish(ctx, events.Event{Type: events.TypeDoctorChanged, Action: input.Action})
	return status, nil
}

func (s *Service) PatientEvents(ctx context.Context, patientID string) ([]store.PatientEvent, error) {
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.ListPatientEvents(ctx, patientID)
}

// SweepLate marks waiting patients late when they checked in after their slot
// and the doctor has already passed their token. It returns how many changed.
func (s *Service) SweepLate(ctx context.Context) (int, error) {
	now := s.now()
	snapshot, err := s.daySnapshot(ctx, now)
	if err != nil {
		return 0, err
	}
	day, open, err := schedule.Resolve(snapshot.Schedule, now)
	if err != nil || !open {
		return 0, err
	}

	marked := 0
	for _, w := range day.Windows() {
		for _, mark := range queue.DetectLate(snapshot.Patients, w, day.SlotDuration) {
			_, changed, err := s.store.ApplyAction(ctx, store.PatientActionInput{
				PatientID:  mark.PatientID,
				Action:     store.ActionMarkLate,
				LateBy:     mark.LateBy,
				OccurredAt: now,
			})
			if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrPatientNotFound) {
				continue
			}
			if err != nil {
				return marked, err
			}
			if changed {
				marked++
				logging.FromContext(ctx).Info().
					Str("patient_id", mark.PatientID).
					Int("token_no", mark.TokenNo).
					Int("late_by", mark.LateBy).
					Msg("patient marked late")
			}
		}
	}
	if marked > 0 {
		s.publish(ctx, events.Event{Type: events.TypeQueueChanged, Action: store.ActionMarkLate})
	}
	return marked, nil
}

func (s *Service) AutoOffline(ctx context.Context) (bool, error) {
	changed, err := s.store.AutoOffline(ctx, s.now(), s.autoOfflineAfter)
	if err != nil {
		return false, err
	}
	if changed {
		logging.FromContext(ctx).Info().Msg("doctor set offline after last session")
		s.publish(ctx, events.Event{Type: events.TypeDoctorChanged, Action: store.DoctorOffline})
	}
	return changed, nil
}

func (s *Service) queueOptions(session string) queue.Options {
	return queue.Options{LatePenalty: s.latePenalty, Session: session}
}

func (s *Service) daySnapshot(ctx context.Context, now time.Time) (queue.Snapshot, error) {
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return queue.Snapshot{}, err
	}
	loc, err := schedule.Location(sched)
	if err != nil {
		return queue.Snapshot{}, err
	}
	y, m, d := now.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return s.store.Snapshot(ctx, from, from.AddDate(0, 0, 1))
}

func (s *Service) sessionOf(ctx context.Context, patientID string) (schedule.Window, error) {
	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return schedule.Window{}, err
	}
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return schedule.Window{}, err
	}
	day, _, err := schedule.Resolve(sched, patient.AppointmentTime)
	if err != nil {
		return schedule.Window{}, err
	}
	name, ok := day.SessionAt(patient.AppointmentTime)
	if !ok {
		return schedule.Window{}, nil
	}
	window, _ := day.Session(name)
	return window, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("type", event.Type).Msg("publish event")
	}
}

func scopedRequestID(requestID, action string) string {
	if requestID == "" {
		return ""
	}
	return requestID + ":" + action
}
