package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	actor := int64(4)
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+audit_events\b.*RETURNING\s+id,\s*created_at`).
		WithArgs(&actor, "completed", "activity.complete", "activity", int64(11), int64(1), nil, `{"files":3}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(100), now))

	e := &models.AuditEvent{
		ActorID: &actor, Verb: "completed", Action: "activity.complete",
		TargetType: "activity", TargetID: 11, EvaluatorID: 1,
		Metadata: map[string]any{"files": 3},
	}
	require.NoError(t, NewPostgresRepository(db).Append(context.Background(), e))
	assert.Equal(t, int64(100), e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO audit_events`).WillReturnError(errors.New("boom"))

	err = NewPostgresRepository(db).Append(context.Background(), &models.AuditEvent{})
	assert.EqualError(t, err, "db error: boom")
}
