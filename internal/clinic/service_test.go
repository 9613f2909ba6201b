package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/events"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/queue"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	patients      []models.Patient
	status        models.DoctorStatus
	snapshotFn    func(ctx context.Context, from, to time.Time) (queue.Snapshot, error)
	createFn      func(ctx context.Context, input store.CreatePatientInput) (models.Patient, bool, error)
	actionFn      func(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error)
	doctorFn      func(ctx context.Context, input store.DoctorStatusInput) (models.DoctorStatus, error)
	autoOfflineFn func(ctx context.Context, now time.Time, after time.Duration) (bool, error)
}

func (f *fakeStore) Snapshot(ctx context.Context, from, to time.Time) (queue.Snapshot, error) {
	if f.snapshotFn != nil {
		return f.snapshotFn(ctx, from, to)
	}
	return queue.Snapshot{Patients: f.patients, Schedule: testSchedule(), Status: f.status}, nil
}

func (f *fakeStore) GetSchedule(ctx context.Context) (models.DoctorSchedule, error) {
	return testSchedule(), nil
}

func (f *fakeStore) SaveSchedule(ctx context.Context, schedule models.DoctorSchedule) error {
	return nil
}

func (f *fakeStore) GetDoctorStatus(ctx context.Context) (models.DoctorStatus, error) {
	return f.status, nil
}

func (f *fakeStore) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	for _, p := range f.patients {
		if p.ID == patientID {
			return p, nil
		}
	}
	return models.Patient{}, store.ErrPatientNotFound
}

func (f *fakeStore) CreatePatient(ctx context.Context, input store.CreatePatientInput) (models.Patient, bool, error) {
	if f.createFn == nil {
		return models.Patient{}, false, nil
	}
	return f.createFn(ctx, input)
}

func (f *fakeStore) ApplyAction(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error) {
	if f.actionFn == nil {
		return models.Patient{}, false, nil
	}
	return f.actionFn(ctx, input)
}

func (f *fakeStore) UpdateDoctorStatus(ctx context.Context, input store.DoctorStatusInput) (models.DoctorStatus, error) {
	if f.doctorFn == nil {
		return models.DoctorStatus{}, nil
	}
	return f.doctorFn(ctx, input)
}

func (f *fakeStore) AutoOffline(ctx context.Context, now time.Time, after time.Duration) (bool, error) {
	if f.autoOfflineFn == nil {
		return false, nil
	}
	return f.autoOfflineFn(ctx, now, after)
}

func (f *fakeStore) ListPatientEvents(ctx context.Context, patientID string) ([]store.PatientEvent, error) {
	return nil, nil
}

func at(h, m int) time.Time {
	return time.Date(2025, 11, 3, h, m, 0, 0, time.UTC)
}

func testSchedule() models.DoctorSchedule {
	s := models.DoctorSchedule{Timezone: "UTC", SlotDuration: 15}
	for i := range s.Days {
		s.Days[i] = models.DaySchedule{
			Morning: models.Session{IsOpen: true, Start: "10:30", End: "13:00"},
			Evening: models.Session{IsOpen: true, Start: "18:30", End: "21:30"},
		}
	}
	s.Days[time.Sunday] = models.DaySchedule{}
	return s
}

func patient(id string, token int, status string) models.Patient {
	return models.Patient{
		ID:              id,
		Name:            id,
		TokenNo:         token,
		AppointmentTime: at(10, 30).Add(time.Duration(token-1) * 15 * time.Minute),
		Status:          status,
	}
}

func newService(st *fakeStore, bus events.Bus, now time.Time) *Service {
	return New(st, bus, Options{LatePenalty: 2, Now: func() time.Time { return now }})
}

func TestBoardUsesWholeDaySnapshot(t *testing.T) {
	var gotFrom, gotTo time.Time
	st := &fakeStore{patients: []models.Patient{
		patient("A", 1, models.StatusWaiting),
		patient("B", 2, models.StatusWaiting),
	}}
	st.snapshotFn = func(ctx context.Context, from, to time.Time) (queue.Snapshot, error) {
		gotFrom, gotTo = from, to
		return queue.Snapshot{Patients: st.patients, Schedule: testSchedule()}, nil
	}

	board, err := newService(st, nil, at(10, 0)).Board(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, at(0, 0), gotFrom)
	assert.Equal(t, at(0, 0).AddDate(0, 0, 1), gotTo)
	assert.Equal(t, models.SessionMorning, board.Session)
	assert.Equal(t, []string{"A", "B"}, board.Order)
	assert.Equal(t, at(10, 45), board.ETCs["B"].BestCase)
}

func TestBoardPropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	st := &fakeStore{snapshotFn: func(ctx context.Context, from, to time.Time) (queue.Snapshot, error) {
		return queue.Snapshot{}, boom
	}}
	_, err := newService(st, nil, at(10, 0)).Board(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}

func TestBookUsesActiveSessionAndPublishes(t *testing.T) {
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	var got store.CreatePatientInput
	st := &fakeStore{createFn: func(ctx context.Context, input store.CreatePatientInput) (models.Patient, bool, error) {
		got = input
		return models.Patient{ID: "p1", TokenNo: 1}, true, nil
	}}

	patient, created, err := newService(st, bus, at(14, 0)).Book(ctx, BookInput{RequestID: "r1", Name: "Asha", VisitType: models.VisitWalkIn})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "p1", patient.ID)
	assert.Equal(t, at(18, 30), got.SessionStart)
	assert.Equal(t, at(21, 30), got.SessionEnd)
	assert.Equal(t, 15, got.SlotMinutes)

	select {
	case event := <-sub:
		assert.Equal(t, events.TypeQueueChanged, event.Type)
		assert.Equal(t, "p1", event.PatientID)
	case <-time.After(time.Second):
		t.Fatal("expected queue event")
	}
}

func TestBookRejectsClosedSession(t *testing.T) {
	st := &fakeStore{}
	svc := newService(st, nil, at(10, 0))

	_, _, err := svc.Book(context.Background(), BookInput{Name: "Asha", AppointmentTime: at(15, 0)})
	assert.ErrorIs(t, err, store.ErrSessionClosed)

	sunday := time.Date(2025, 11, 2, 11, 0, 0, 0, time.UTC)
	_, _, err = newService(st, nil, sunday).Book(context.Background(), BookInput{Name: "Asha"})
	assert.ErrorIs(t, err, store.ErrSessionClosed)
}

func TestActStartCarriesSessionWindow(t *testing.T) {
	var got store.PatientActionInput
	st := &fakeStore{patients: []models.Patient{patient("A", 1, models.StatusWaiting)}}
	st.actionFn = func(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error) {
		got = input
		return models.Patient{ID: input.PatientID, Status: models.StatusInConsultation}, true, nil
	}

	_, changed, err := newService(st, nil, at(10, 40)).Act(context.Background(), ActInput{PatientID: "A", Action: store.ActionStart})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, at(10, 30), got.SessionStart)
	assert.Equal(t, at(13, 0), got.SessionEnd)
	assert.Equal(t, at(10, 40), got.OccurredAt)
}

func TestAdvanceCompletesAndStartsNext(t *testing.T) {
	current := patient("A", 1, models.StatusInConsultation)
	started := at(10, 30)
	current.ConsultationStartTime = &started
	st := &fakeStore{patients: []models.Patient{
		current,
		patient("B", 2, models.StatusWaiting),
		patient("C", 3, models.StatusWaiting),
	}}

	var calls []store.PatientActionInput
	st.actionFn = func(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error) {
		calls = append(calls, input)
		return models.Patient{ID: input.PatientID}, true, nil
	}

	result, err := newService(st, nil, at(10, 45)).Advance(context.Background(), "req", "")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, store.ActionComplete, calls[0].Action)
	assert.Equal(t, "A", calls[0].PatientID)
	assert.Equal(t, "req:complete", calls[0].RequestID)
	assert.Equal(t, store.ActionStart, calls[1].Action)
	assert.Equal(t, "B", calls[1].PatientID)
	assert.Equal(t, "req:start", calls[1].RequestID)
	require.NotNil(t, result.Completed)
	require.NotNil(t, result.Started)
	assert.Equal(t, "B", result.Started.ID)
}

func TestAdvanceWithEmptyQueue(t *testing.T) {
	st := &fakeStore{}
	result, err := newService(st, nil, at(10, 45)).Advance(context.Background(), "", "")
	require.NoError(t, err)
	assert.Nil(t, result.Completed)
	assert.Nil(t, result.Started)
}

func TestPatientStatusPosition(t *testing.T) {
	st := &fakeStore{patients: []models.Patient{
		patient("A", 1, models.StatusWaiting),
		patient("B", 2, models.StatusWaiting),
		patient("C", 3, models.StatusWaiting),
	}}

	status, err := newService(st, nil, at(10, 0)).PatientStatus(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, models.SessionMorning, status.Session)
	assert.Equal(t, 3, status.Position)
	assert.Equal(t, 2, status.PeopleAhead)
	assert.False(t, status.UpNext)
	require.NotNil(t, status.ETC)
	assert.Equal(t, at(11, 0), status.ETC.BestCase)
}

func TestPatientStatusForFinishedPatient(t *testing.T) {
	st := &fakeStore{patients: []models.Patient{patient("A", 1, models.StatusCompleted)}}

	status, err := newService(st, nil, at(10, 0)).PatientStatus(context.Background(), "A")
	require.NoError(t, err)
	assert.Zero(t, status.Position)
	assert.Nil(t, status.ETC)

	_, err = newService(st, nil, at(10, 0)).PatientStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrPatientNotFound)
}

func TestResolveDate(t *testing.T) {
	svc := newService(&fakeStore{}, nil, at(10, 0))

	day, open, err := svc.ResolveDate(context.Background(), "2025-11-02")
	require.NoError(t, err)
	assert.False(t, open)
	assert.Equal(t, "2025-11-02", day.Date)

	day, open, err = svc.ResolveDate(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "2025-11-03", day.Date)

	_, _, err = svc.ResolveDate(context.Background(), "03/11/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestSweepLateMarksPassedTokens(t *testing.T) {
	checkIn := at(10, 50)
	late := patient("A", 1, models.StatusWaiting)
	late.CheckInTime = &checkIn
	st := &fakeStore{patients: []models.Patient{
		late,
		patient("B", 2, models.StatusInConsultation),
	}}

	var got []store.PatientActionInput
	st.actionFn = func(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error) {
		got = append(got, input)
		return models.Patient{ID: input.PatientID, Status: models.StatusLate}, true, nil
	}

	marked, err := newService(st, nil, at(11, 0)).SweepLate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	require.Len(t, got, 1)
	assert.Equal(t, store.ActionMarkLate, got[0].Action)
	assert.Equal(t, "A", got[0].PatientID)
	assert.Equal(t, 20, got[0].LateBy)
}

func TestSweepLateSkipsRaces(t *testing.T) {
	checkIn := at(10, 50)
	late := patient("A", 1, models.StatusWaiting)
	late.CheckInTime = &checkIn
	st := &fakeStore{patients: []models.Patient{late, patient("B", 2, models.StatusInConsultation)}}
	st.actionFn = func(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error) {
		return models.Patient{}, false, store.ErrInvalidState
	}

	marked, err := newService(st, nil, at(11, 0)).SweepLate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestAutoOfflinePublishesDoctorEvent(t *testing.T) {
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	var gotAfter time.Duration
	st := &fakeStore{autoOfflineFn: func(ctx context.Context, now time.Time, after time.Duration) (bool, error) {
		gotAfter = after
		return true, nil
	}}

	changed, err := newService(st, bus, at(23, 40)).AutoOffline(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2*time.Hour, gotAfter)

	select {
	case event := <-sub:
		assert.Equal(t, events.TypeDoctorChanged, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected doctor event")
	}
}

func TestStatsForActiveSession(t *testing.T) {
	st := &fakeStore{patients: []models.Patient{
		patient("A", 1, models.StatusWaiting),
		patient("B", 2, models.StatusBooked),
	}}

	stats, err := newService(st, nil, at(11, 0)).Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.SessionMorning, stats.Session)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Waiting)

	stats, err = newService(st, nil, at(11, 0)).Stats(context.Background(), models.SessionEvening)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}
