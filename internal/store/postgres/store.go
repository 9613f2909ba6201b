package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/queue"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventCreated = "created"

type Store struct {
	pool *pgxpool.Pool
}

var _ store.ClinicStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Snapshot reads the schedule, the doctor status and the patients with an
// appointment in [from, to) from one repeatable-read transaction.
func (s *Store) Snapshot(ctx context.Context, from, to time.Time) (queue.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return queue.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sched, err := loadSchedule(ctx, tx)
	if err != nil {
		return queue.Snapshot{}, err
	}
	status, err := loadDoctorStatus(ctx, tx, false)
	if err != nil {
		return queue.Snapshot{}, err
	}
	patients, err := listPatients(ctx, tx, from, to)
	if err != nil {
		return queue.Snapshot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return queue.Snapshot{}, err
	}
	return queue.Snapshot{Patients: patients, Schedule: sched, Status: status}, nil
}

func (s *Store) GetSchedule(ctx context.Context) (models.DoctorSchedule, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT schedule FROM doctor_schedule WHERE id = 1`)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DoctorSchedule{}, store.ErrScheduleNotFound
		}
		return models.DoctorSchedule{}, err
	}
	var sched models.DoctorSchedule
	if err := json.Unmarshal(raw, &sched); err != nil {
		return models.DoctorSchedule{}, fmt.Errorf("decode schedule: %w", err)
	}
	return sched, nil
}

func (s *Store) SaveSchedule(ctx context.Context, sched models.DoctorSchedule) error {
	if err := schedule.Validate(sched); err != nil {
		return err
	}
	raw, err := json.Marshal(sched)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO doctor_schedule (id, schedule, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET schedule = EXCLUDED.schedule, updated_at = EXCLUDED.updated_at
	`, raw)
	return err
}

func (s *Store) GetDoctorStatus(ctx context.Context) (models.DoctorStatus, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return models.DoctorStatus{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := loadDoctorStatus(ctx, tx, false)
	if err != nil {
		return models.DoctorStatus{}, err
	}
	return status, tx.Commit(ctx)
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	query, args, err := patientByIDQuery(patientID, false)
	if err != nil {
		return models.Patient{}, err
	}
	patient, err := scanPatient(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, store.ErrPatientNotFound
		}
		return models.Patient{}, err
	}
	return patient, nil
}

// CreatePatient books a patient with the next token of the session. A repeated
// request id returns the patient created by the first call.
func (s *Store) CreatePatient(ctx context.Context, input store.CreatePatientInput) (models.Patient, bool, error) {
	if !input.SessionEnd.After(input.SessionStart) {
		return models.Patient{}, false, store.ErrSessionClosed
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Patient{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if input.RequestID != "" {
		if err := advisoryLock(ctx, tx, "book:"+input.RequestID); err != nil {
			return models.Patient{}, false, err
		}
		existing, found, err := findPatientByRequestID(ctx, tx, input.RequestID)
		if err != nil {
			return models.Patient{}, false, err
		}
		if found {
			if err := tx.Commit(ctx); err != nil {
				return models.Patient{}, false, err
			}
			return existing, false, nil
		}
	}

	if err := advisoryLock(ctx, tx, "token:"+input.SessionStart.UTC().Format(time.RFC3339)); err != nil {
		return models.Patient{}, false, err
	}
	query, args, err := nextTokenQuery(input.SessionStart, input.SessionEnd)
	if err != nil {
		return models.Patient{}, false, err
	}
	var lastToken int
	if err := tx.QueryRow(ctx, query, args...).Scan(&lastToken); err != nil {
		return models.Patient{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	visitType := input.VisitType
	if visitType == "" {
		visitType = models.VisitAppointment
	}
	token := lastToken + 1
	patient := models.Patient{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Phone:           input.Phone,
		VisitType:       visitType,
		TokenNo:         token,
		AppointmentTime: resolveAppointment(input.AppointmentTime, input.SessionStart, input.SessionEnd, input.SlotMinutes, token),
		Status:          models.StatusBooked,
	}
	if input.CheckIn {
		patient.Status = models.StatusWaiting
		patient.CheckInTime = &createdAt
	}

	query, args, err = insertPatientQuery(input.RequestID, patient, createdAt)
	if err != nil {
		return models.Patient{}, false, err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return models.Patient{}, false, err
	}
	if err := appendPatientEvent(ctx, tx, patient, eventCreated, createdAt); err != nil {
		return models.Patient{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Patient{}, false, err
	}
	return patient, true, nil
}

// ApplyAction moves a patient through one status transition. The bool is false
// when the request id was already applied.
func (s *Store) ApplyAction(ctx context.Context, input store.PatientActionInput) (models.Patient, bool, error) {
	if _, ok := store.TargetStatus(input.Action); !ok {
		return models.Patient{}, false, store.ErrInvalidAction
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Patient{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if input.RequestID != "" {
		if err := advisoryLock(ctx, tx, "action:"+input.RequestID); err != nil {
			return models.Patient{}, false, err
		}
		patientID, found, err := findActionRequest(ctx, tx, input.Action, input.RequestID)
		if err != nil {
			return models.Patient{}, false, err
		}
		if found {
			existing, err := getPatient(ctx, tx, patientID, false)
			if err != nil {
				return models.Patient{}, false, err
			}
			if err := tx.Commit(ctx); err != nil {
				return models.Patient{}, false, err
			}
			return existing, false, nil
		}
	}

	current, err := getPatient(ctx, tx, input.PatientID, true)
	if err != nil {
		return models.Patient{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	next, err := store.ApplyPatientAction(current, input, occurredAt)
	if err != nil {
		return models.Patient{}, false, err
	}

	if input.Action == store.ActionStart && !input.SessionStart.IsZero() {
		if err := advisoryLock(ctx, tx, "consult:"+input.SessionStart.UTC().Format(time.RFC3339)); err != nil {
			return models.Patient{}, false, err
		}
		busy, err := consultationBusy(ctx, tx, current.ID, input.SessionStart, input.SessionEnd)
		if err != nil {
			return models.Patient{}, false, err
		}
		if busy {
			return models.Patient{}, false, store.ErrConsultationBusy
		}
	}

	query, args, err := updatePatientQuery(next)
	if err != nil {
		return models.Patient{}, false, err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return models.Patient{}, false, err
	}
	if input.RequestID != "" {
		if err := insertActionRequest(ctx, tx, input.Action, input.RequestID, next.ID); err != nil {
			return models.Patient{}, false, err
		}
	}
	if err := appendPatientEvent(ctx, tx, next, input.Action, occurredAt); err != nil {
		return models.Patient{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Patient{}, false, err
	}
	return next, true, nil
}

func (s *Store) UpdateDoctorStatus(ctx context.Context, input store.DoctorStatusInput) (models.DoctorStatus, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.DoctorStatus{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := loadDoctorStatus(ctx, tx, true)
	if err != nil {
		return models.DoctorStatus{}, err
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	next, err := store.ApplyDoctorAction(current, input, occurredAt)
	if err != nil {
		return models.DoctorStatus{}, err
	}
	if err := saveDoctorStatus(ctx, tx, next); err != nil {
		return models.DoctorStatus{}, err
	}
	return next, tx.Commit(ctx)
}

// AutoOffline takes the doctor offline once the last session of the day ended
// more than after ago.
func (s *Store) AutoOffline(ctx context.Context, now time.Time, after time.Duration) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sched, err := loadSchedule(ctx, tx)
	if err != nil {
		return false, err
	}
	status, err := loadDoctorStatus(ctx, tx, true)
	if err != nil {
		return false, err
	}
	day, _, err := schedule.Resolve(sched, now)
	if err != nil {
		return false, err
	}
	if !store.ShouldAutoOffline(status, day, now, after) {
		return false, tx.Commit(ctx)
	}

	next, err := store.ApplyDoctorAction(status, store.DoctorStatusInput{Action: store.DoctorOffline}, now)
	if err != nil {
		return false, err
	}
	next.DelayMinutes = 0
	if err := saveDoctorStatus(ctx, tx, next); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListPatientEvents(ctx context.Context, patientID string) ([]store.PatientEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT patient_id, seq, type, payload, created_at, prev_hash, hash
		FROM patient_events
		WHERE patient_id = $1
		ORDER BY seq ASC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.PatientEvent
	for rows.Next() {
		var event store.PatientEvent
		if err := rows.Scan(&event.PatientID, &event.Seq, &event.Type, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func loadSchedule(ctx context.Context, tx pgx.Tx) (models.DoctorSchedule, error) {
	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT schedule FROM doctor_schedule WHERE id = 1`).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DoctorSchedule{}, store.ErrScheduleNotFound
		}
		return models.DoctorSchedule{}, err
	}
	var sched models.DoctorSchedule
	if err := json.Unmarshal(raw, &sched); err != nil {
		return models.DoctorSchedule{}, fmt.Errorf("decode schedule: %w", err)
	}
	return sched, nil
}

func loadDoctorStatus(ctx context.Context, tx pgx.Tx, forUpdate bool) (models.DoctorStatus, error) {
	query := `
		SELECT is_online, online_time, delay_minutes, is_paused, pause_start, updated_at
		FROM doctor_status
		WHERE id = 1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var status models.DoctorStatus
	var onlineTime sql.NullTime
	var pauseStart sql.NullTime
	err := tx.QueryRow(ctx, query).Scan(&status.IsOnline, &onlineTime, &status.DelayMinutes, &status.IsPaused, &pauseStart, &status.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DoctorStatus{}, nil
		}
		return models.DoctorStatus{}, err
	}
	status.OnlineTime = nullTimePtr(onlineTime)
	status.PauseStart = nullTimePtr(pauseStart)
	return status, nil
}

func saveDoctorStatus(ctx context.Context, tx pgx.Tx, status models.DoctorStatus) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO doctor_status (id, is_online, online_time, delay_minutes, is_paused, pause_start, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			is_online = EXCLUDED.is_online,
			online_time = EXCLUDED.online_time,
			delay_minutes = EXCLUDED.delay_minutes,
			is_paused = EXCLUDED.is_paused,
			pause_start = EXCLUDED.pause_start,
			updated_at = EXCLUDED.updated_at
	`, status.IsOnline, nullTime(status.OnlineTime), status.DelayMinutes, status.IsPaused, nullTime(status.PauseStart), status.UpdatedAt)
	return err
}

func listPatients(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.Patient, error) {
	query, args, err := patientsBetweenQuery(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, patient)
	}
	return patients, rows.Err()
}

func getPatient(ctx context.Context, tx pgx.Tx, patientID string, forUpdate bool) (models.Patient, error) {
	query, args, err := patientByIDQuery(patientID, forUpdate)
	if err != nil {
		return models.Patient{}, err
	}
	patient, err := scanPatient(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, store.ErrPatientNotFound
		}
		return models.Patient{}, err
	}
	return patient, nil
}

func findPatientByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Patient, bool, error) {
	query, args, err := patientByRequestQuery(requestID)
	if err != nil {
		return models.Patient{}, false, err
	}
	patient, err := scanPatient(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, false, nil
		}
		return models.Patient{}, false, err
	}
	return patient, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (string, bool, error) {
	var patientID string
	row := tx.QueryRow(ctx, `
		SELECT patient_id
		FROM patient_action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&patientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return patientID, true, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, patientID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO patient_action_requests (request_id, action, patient_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, patientID)
	return err
}

func consultationBusy(ctx context.Context, tx pgx.Tx, patientID string, sessionStart, sessionEnd time.Time) (bool, error) {
	query, args, err := consultingCountQuery(patientID, sessionStart, sessionEnd)
	if err != nil {
		return false, err
	}
	var count int
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func appendPatientEvent(ctx context.Context, tx pgx.Tx, patient models.Patient, eventType string, createdAt time.Time) error {
	payload, err := store.EventPayload(patient)
	if err != nil {
		return err
	}
	if err := advisoryLock(ctx, tx, "events:"+patient.ID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM patient_events
		WHERE patient_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, patient.ID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	seq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	hash := store.ComputePatientEventHash(prev, patient.ID, eventType, payload, createdAt, seq)

	_, err = tx.Exec(ctx, `
		INSERT INTO patient_events (patient_id, seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, patient.ID, seq, eventType, payload, createdAt, prev, hash)
	return err
}

// advisoryLock serialises transactions on key until the surrounding
// transaction ends.
func advisoryLock(ctx context.Context, tx pgx.Tx, key string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (models.Patient, error) {
	var patient models.Patient
	var phone sql.NullString
	var checkIn, consultStart, consultEnd sql.NullTime
	if err := row.Scan(
		&patient.ID,
		&patient.Name,
		&phone,
		&patient.VisitType,
		&patient.TokenNo,
		&patient.AppointmentTime,
		&patient.Status,
		&checkIn,
		&consultStart,
		&consultEnd,
		&patient.LateBy,
		&patient.LatePenalty,
	); err != nil {
		return models.Patient{}, err
	}
	patient.Phone = phone.String
	patient.CheckInTime = nullTimePtr(checkIn)
	patient.ConsultationStartTime = nullTimePtr(consultStart)
	patient.ConsultationEndTime = nullTimePtr(consultEnd)
	return patient, nil
}

// resolveAppointment keeps a chosen appointment time, otherwise it uses the
// token's slot, held inside the session so the patient stays in its queue.
func resolveAppointment(chosen, sessionStart, sessionEnd time.Time, slotMinutes, token int) time.Time {
	if !chosen.IsZero() {
		return chosen
	}
	at := sessionStart.Add(time.Duration(token-1) * time.Duration(slotMinutes) * time.Minute)
	if !at.Before(sessionEnd) {
		at = sessionEnd.Add(-time.Minute)
	}
	return at
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
