package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/metrics"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

type fakePreviewer struct {
	planned []services.PlannedReminder
	err     error
	gotDate  time.Time
	gotJob   string
	gotActor models.Actor
}

func (f *fakePreviewer) RunDate(t time.Time) time.Time {
	return timex.LocalDate(t, time.UTC)
}

func (f *fakePreviewer) Preview(_ context.Context, actor models.Actor, runDate time.Time, job string) ([]services.PlannedReminder, error) {
	f.gotDate, f.gotJob, f.gotActor = runDate, job, actor
	return f.planned, f.err
}

type fakeAuth struct {
	err error
}

func (f fakeAuth) Authenticate(_ context.Context, token string) (models.Actor, error) {
	if f.err != nil {
		return models.Actor{}, f.err
	}
	switch token {
	case "admin":
		return models.Actor{UserID: 7, Role: models.RoleEvaluatorAdmin, EvaluatorID: 1}, nil
	case "supplier":
		sid := int64(2)
		return models.Actor{UserID: 9, Role: models.RoleSupplierUser, EvaluatorID: 1, SupplierID: &sid}, nil
	}
	return models.Actor{}, common.ErrorUnauthorized
}

func newTestHandler(p *fakePreviewer, a fakeAuth, health HealthFunc) *Handler {
	h := NewHandler(p, a, health, logging.Nop())
	h.now = func() time.Time { return time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC) }
	return h
}

func do(t *testing.T, h http.Handler, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	ok := newTestHandler(&fakePreviewer{}, fakeAuth{}, func(context.Context) error { return nil }).Router(prometheus.NewRegistry())
	rec := do(t, ok, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	down := newTestHandler(&fakePreviewer{}, fakeAuth{}, func(context.Context) error { return errors.New("db down") }).Router(prometheus.NewRegistry())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, "/healthz", "").Code)
}

func TestAccessLog_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&fakePreviewer{}, fakeAuth{}, nil, logging.NewText(&buf, slog.LevelDebug))
	r := h.Router(prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `msg="http request"`)
	assert.Contains(t, buf.String(), "request_id=req-42")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.ActivityCompleted()

	r := newTestHandler(&fakePreviewer{}, fakeAuth{}, nil).Router(reg)
	rec := do(t, r, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lfras_activities_completed_total 1")
}

func TestPreview(t *testing.T) {
	p := &fakePreviewer{planned: []services.PlannedReminder{{Job: services.JobDocuments, TargetID: 3, Kind: "PRE", Days: 7, Recipients: []string{"a@x.com"}}}}
	r := newTestHandler(p, fakeAuth{}, nil).Router(prometheus.NewRegistry())

	rec := do(t, r, "/v1/reminders/preview", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RunDate   string                     `json:"run_date"`
		Reminders []services.PlannedReminder `json:"reminders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2025-03-04", body.RunDate)
	require.Len(t, body.Reminders, 1)
	assert.Equal(t, []string{"a@x.com"}, body.Reminders[0].Recipients)

	rec = do(t, r, "/v1/reminders/preview?date=2025-04-01&job=files", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, timex.Date(2025, 4, 1), p.gotDate)
	assert.Equal(t, "files", p.gotJob)
	assert.Equal(t, int64(1), p.gotActor.EvaluatorID)
}

func TestPreview_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		token  string
		auth   fakeAuth
		err    error
		status int
		code   string
	}{
		{name: "no token", target: "/v1/reminders/preview", status: http.StatusUnauthorized, code: "MISSING_AUTHORIZATION"},
		{name: "bad token", target: "/v1/reminders/preview", token: "nope", status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
		{name: "auth backend down", target: "/v1/reminders/preview", token: "admin", auth: fakeAuth{err: errors.New("db")}, status: http.StatusInternalServerError, code: "INTERNAL"},
		{name: "supplier user", target: "/v1/reminders/preview", token: "supplier", status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "bad date", target: "/v1/reminders/preview?date=04.03.2025", token: "admin", status: http.StatusBadRequest, code: "INVALID_DATE"},
		{name: "bad job", target: "/v1/reminders/preview?job=x", token: "admin", err: fmt.Errorf("%w %q", services.ErrUnknownJob, "x"), status: http.StatusBadRequest, code: "INVALID_JOB"},
		{name: "tenant refused", target: "/v1/reminders/preview", token: "admin", err: common.ErrorForbidden, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "preview fails", target: "/v1/reminders/preview", token: "admin", err: errors.New("db"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestHandler(&fakePreviewer{err: tt.err}, tt.auth, nil).Router(prometheus.NewRegistry())
			rec := do(t, r, tt.target, tt.token)
			assert.Equal(t, tt.status, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), `"code":"`+tt.code+`"`), rec.Body.String())
		})
	}
}

func TestServer_StopsOnContextCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
