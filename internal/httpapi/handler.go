// Package httpapi exposes the clinic queue over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/clinic"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/logging"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/queue"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/store"

	"github.com/google/uuid"
)

// Clinic is what the handlers need from the queue service.
type Clinic interface {
	Board(ctx context.Context, session string) (queue.Board, error)
	Stats(ctx context.Context, session string) (queue.Stats, error)
	PatientStatus(ctx context.Context, patientID string) (clinic.PatientStatus, error)
	ResolveDate(ctx context.Context, date string) (schedule.Day, bool, error)
	Schedule(ctx context.Context) (models.DoctorSchedule, error)
	SaveSchedule(ctx context.Context, sched models.DoctorSchedule) error
	Book(ctx context.Context, input clinic.BookInput) (models.Patient, bool, error)
	Act(ctx context.Context, input clinic.ActInput) (models.Patient, bool, error)
	Advance(ctx context.Context, requestID, session string) (clinic.AdvanceResult, error)
	SetDoctorStatus(ctx context.Context, input store.DoctorStatusInput) (models.DoctorStatus, error)
	PatientEvents(ctx context.Context, patientID string) ([]store.PatientEvent, error)
}

type Handler struct {
	clinic       Clinic
	auth         *Authenticator
	portalDomain string
}

type Options struct {
	PortalDomain string
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type bookRequest struct {
	RequestID       string `json:"request_id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	VisitType       string `json:"visit_type"`
	Session         string `json:"session"`
	AppointmentTime string `json:"appointment_time"`
	CheckIn         bool   `json:"check_in"`
}

type patientActionRequest struct {
	RequestID   string `json:"request_id"`
	LateBy      int    `json:"late_by"`
	LatePenalty int    `json:"late_penalty"`
}

type advanceRequest struct {
	RequestID string `json:"request_id"`
	Session   string `json:"session"`
}

type doctorStatusRequest struct {
	Action       string `json:"action"`
	DelayMinutes int    `json:"delay_minutes"`
}

type resolveResponse struct {
	Open bool         `json:"open"`
	Day  schedule.Day `json:"day"`
}

var actionsByPath = map[string]string{
	"check-in":   store.ActionCheckIn,
	"prioritize": store.ActionPrioritize,
	"late":       store.ActionMarkLate,
	"start":      store.ActionStart,
	"complete":   store.ActionComplete,
	"cancel":     store.ActionCancel,
	"no-show":    store.ActionNoShow,
}

func NewHandler(c Clinic, auth *Authenticator, options Options) *Handler {
	return &Handler{
		clinic:       c,
		auth:         auth,
		portalDomain: options.PortalDomain,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/portal", h.handlePortal)
	mux.HandleFunc("/api/staff/login", h.handleLogin)
	mux.HandleFunc("/api/queue/board", h.handleBoard)
	mux.HandleFunc("/api/queue/advance", h.handleAdvance)
	mux.HandleFunc("/api/queue/stats", h.handleStats)
	mux.HandleFunc("/api/queue/patients/", h.handlePatientStatus)
	mux.HandleFunc("/api/schedule", h.handleSchedule)
	mux.HandleFunc("/api/schedule/resolve", h.handleResolve)
	mux.HandleFunc("/api/patients", h.handleBook)
	mux.HandleFunc("/api/patients/", h.handlePatient)
	mux.HandleFunc("/api/doctor/status", h.handleDoctorStatus)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "password is required")
		return
	}
	token, expiresAt, err := h.auth.Login(req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := parseSession(r.URL.Query().Get("session"))
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "session must be morning or evening")
		return
	}
	board, err := h.clinic.Board(r.Context(), session)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	boardsComputed.Add(1)
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := parseSession(r.URL.Query().Get("session"))
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "session must be morning or evening")
		return
	}
	stats, err := h.clinic.Stats(r.Context(), session)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handlePatientStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/queue/patients/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "status" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}
	status, err := h.clinic.PatientStatus(r.Context(), parts[0])
	if err != nil {
		code, errCode, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), code, errCode, msg)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req advanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID != "" && !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	session, ok := parseSession(req.Session)
	if !ok {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "session must be morning or evening")
		return
	}

	result, err := h.clinic.Advance(r.Context(), req.RequestID, session)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sched, err := h.clinic.Schedule(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	case http.MethodPut:
		var sched models.DoctorSchedule
		if !decodeJSON(w, r, &sched) {
			return
		}
		if err := h.clinic.SaveSchedule(r.Context(), sched); err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	day, open, err := h.clinic.ResolveDate(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Open: open, Day: day})
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.VisitType = strings.TrimSpace(req.VisitType)
	req.AppointmentTime = strings.TrimSpace(req.AppointmentTime)

	if req.RequestID == "" || req.Name == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and name are required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.Phone != "" && !isValidPhone(req.Phone) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "phone must be 8-16 digits")
		return
	}
	switch req.VisitType {
	case "":
		req.VisitType = models.VisitAppointment
	case models.VisitAppointment, models.VisitWalkIn:
	default:
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "visit_type must be appointment or walk_in")
		return
	}
	session, ok := parseSession(req.Session)
	if !ok {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "session must be morning or evening")
		return
	}

	input := clinic.BookInput{
		RequestID: req.RequestID,
		Name:      req.Name,
		Phone:     req.Phone,
		VisitType: req.VisitType,
		Session:   session,
		CheckIn:   req.CheckIn,
	}
	if req.AppointmentTime != "" {
		appointment, err := time.Parse(time.RFC3339, req.AppointmentTime)
		if err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "appointment_time must be RFC3339")
			return
		}
		input.AppointmentTime = appointment
	}

	patient, created, err := h.clinic.Book(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, patient)
}

func (h *Handler) handlePatient(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/patients/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	patientID := parts[0]
	if patientID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(patientID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "events":
		h.handlePatientEvents(w, r, patientID)
	case len(parts) == 3 && parts[1] == "actions":
		action, ok := actionsByPath[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handlePatientAction(w, r, patientID, action)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handlePatientEvents(w http.ResponseWriter, r *http.Request, patientID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	events, err := h.clinic.PatientEvents(r.Context(), patientID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"events":     events,
	})
}

func (h *Handler) handlePatientAction(w http.ResponseWriter, r *http.Request, patientID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req patientActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.LateBy < 0 || req.LatePenalty < 0 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "late_by and late_penalty must not be negative")
		return
	}

	patient, _, err := h.clinic.Act(r.Context(), clinic.ActInput{
		RequestID:   req.RequestID,
		PatientID:   patientID,
		Action:      action,
		LateBy:      req.LateBy,
		LatePenalty: req.LatePenalty,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	claims, _ := claimsFromContext(r.Context())
	logging.FromContext(r.Context()).Info().
		Str("patient_id", patientID).
		Str("action", action).
		Str("status", patient.Status).
		Str("role", claims.Role).
		Msg("patient action")
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handleDoctorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req doctorStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Action = strings.TrimSpace(req.Action)
	if req.Action == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "action is required")
		return
	}

	status, err := h.clinic.SetDoctorStatus(r.Context(), store.DoctorStatusInput{
		Action:       req.Action,
		DelayMinutes: req.DelayMinutes,
	})
	if err != nil {
		code, errCode, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), code, errCode, msg)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func parseSession(value string) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", models.SessionMorning, models.SessionEvening:
		return value, true
	}
	return "", false
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	value = strings.TrimPrefix(value, "+")
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrScheduleNotFound):
		return http.StatusNotFound, "schedule_not_found", "doctor schedule is not configured"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "patient state does not allow this action"
	case errors.Is(err, store.ErrConsultationBusy):
		return http.StatusConflict, "consultation_busy", "another patient is in consultation"
	case errors.Is(err, store.ErrSessionClosed):
		return http.StatusConflict, "session_closed", "no open session for this time"
	case errors.Is(err, store.ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action", "invalid action"
	case errors.Is(err, queue.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity, "invalid_schedule", err.Error()
	case errors.Is(err, clinic.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, ErrAuthDisabled):
		return http.StatusServiceUnavailable, "auth_disabled", "staff login is not configured"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
