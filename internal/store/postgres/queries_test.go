package postgres

import (
	"testing"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientsBetweenQuery(t *testing.T) {
	from := time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)
	to := time.Date(2025, 11, 3, 13, 0, 0, 0, time.UTC)

	query, args, err := patientsBetweenQuery(from, to)
	require.NoError(t, err)
	assert.Contains(t, query, `FROM "patients"`)
	assert.Contains(t, query, `"appointment_time" >= $1`)
	assert.Contains(t, query, `"appointment_time" < $2`)
	assert.Contains(t, query, `ORDER BY "token_no" ASC, "id" ASC`)
	assert.Equal(t, []interface{}{from, to}, args)
}

func TestPatientByIDQueryLocks(t *testing.T) {
	query, args, err := patientByIDQuery("p1", true)
	require.NoError(t, err)
	assert.Contains(t, query, "FOR UPDATE")
	assert.Equal(t, []interface{}{"p1"}, args)

	query, _, err = patientByIDQuery("p1", false)
	require.NoError(t, err)
	assert.NotContains(t, query, "FOR UPDATE")
}

func TestNextTokenQuery(t *testing.T) {
	query, args, err := nextTokenQuery(time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC), time.Date(2025, 11, 3, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, query, `COALESCE(MAX("token_no")`)
	assert.Len(t, args, 3)
}

func TestUpdatePatientQueryWritesNulls(t *testing.T) {
	start := time.Date(2025, 11, 3, 10, 45, 0, 0, time.UTC)
	query, args, err := updatePatientQuery(models.Patient{
		ID:                    "p1",
		Status:                models.StatusInConsultation,
		ConsultationStartTime: &start,
	})
	require.NoError(t, err)
	assert.Contains(t, query, `UPDATE "patients" SET`)
	assert.Contains(t, query, `"check_in_time"=NULL`)
	assert.Contains(t, args, start)
	assert.Contains(t, args, "p1")
}

func TestResolveAppointment(t *testing.T) {
	start := time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)
	end := time.Date(2025, 11, 3, 11, 0, 0, 0, time.UTC)

	assert.Equal(t, start, resolveAppointment(time.Time{}, start, end, 15, 1))
	assert.Equal(t, start.Add(15*time.Minute), resolveAppointment(time.Time{}, start, end, 15, 2))
	assert.Equal(t, end.Add(-time.Minute), resolveAppointment(time.Time{}, start, end, 15, 5))

	chosen := start.Add(20 * time.Minute)
	assert.Equal(t, chosen, resolveAppointment(chosen, start, end, 15, 5))
}
