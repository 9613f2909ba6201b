package postgres

import (
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
)

var dialect = goqu.Dialect("postgres")

var patientColumns = []interface{}{
	"id", "name", "phone", "visit_type", "token_no", "appointment_time", "status",
	"check_in_time", "consultation_start_time", "consultation_end_time", "late_by", "late_penalty",
}

func patientsBetweenQuery(from, to time.Time) (string, []interface{}, error) {
	return dialect.From("patients").Prepared(true).
		Select(patientColumns...).
		Where(
			goqu.C("appointment_time").Gte(from),
			goqu.C("appointment_time").Lt(to),
		).
		Order(goqu.C("token_no").Asc(), goqu.C("id").Asc()).
		ToSQL()
}

func patientByIDQuery(patientID string, forUpdate bool) (string, []interface{}, error) {
	ds := dialect.From("patients").Prepared(true).
		Select(patientColumns...).
		Where(goqu.C("id").Eq(patientID))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds.ToSQL()
}

func patientByRequestQuery(requestID string) (string, []interface{}, error) {
	return dialect.From("patients").Prepared(true).
		Select(patientColumns...).
		Where(goqu.C("request_id").Eq(requestID)).
		ToSQL()
}

func nextTokenQuery(sessionStart, sessionEnd time.Time) (string, []interface{}, error) {
	return dialect.From("patients").Prepared(true).
		Select(goqu.COALESCE(goqu.MAX("token_no"), 0)).
		Where(
			goqu.C("appointment_time").Gte(sessionStart),
			goqu.C("appointment_time").Lt(sessionEnd),
		).
		ToSQL()
}

func consultingCountQuery(patientID string, sessionStart, sessionEnd time.Time) (string, []interface{}, error) {
	return dialect.From("patients").Prepared(true).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("status").Eq(models.StatusInConsultation),
			goqu.C("appointment_time").Gte(sessionStart),
			goqu.C("appointment_time").Lt(sessionEnd),
			goqu.C("id").Neq(patientID),
		).
		ToSQL()
}

func insertPatientQuery(requestID string, p models.Patient, createdAt time.Time) (string, []interface{}, error) {
	return dialect.Insert("patients").Prepared(true).
		Rows(goqu.Record{
			"id":               p.ID,
			"request_id":       nullIfEmpty(requestID),
			"name":             p.Name,
			"phone":            nullIfEmpty(p.Phone),
			"visit_type":       p.VisitType,
			"token_no":         p.TokenNo,
			"appointment_time": p.AppointmentTime,
			"status":           p.Status,
			"check_in_time":    nullTime(p.CheckInTime),
			"created_at":       createdAt,
		}).
		ToSQL()
}

func updatePatientQuery(p models.Patient) (string, []interface{}, error) {
	return dialect.Update("patients").Prepared(true).
		Set(goqu.Record{
			"status":                  p.Status,
			"check_in_time":           nullTime(p.CheckInTime),
			"consultation_start_time": nullTime(p.ConsultationStartTime),
			"consultation_end_time":   nullTime(p.ConsultationEndTime),
			"late_by":                 p.LateBy,
			"late_penalty":            p.LatePenalty,
		}).
		Where(goqu.C("id").Eq(p.ID)).
		ToSQL()
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
