package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkin-engine/attendance"
	"github.com/warp/checkin-engine/attendance/store"
)

func TestScenarios_ListAndLoad(t *testing.T) {
	env := newMemoryEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]ScenarioDTO](t, body), len(scenarios))

	resp, body = env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "town-hall"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	_, body = env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "town-hall", decode[ScenarioDTO](t, body).ID)

	_, body = env.do(t, http.MethodGet, "/api/sessions/active", nil)
	active := decode[ActiveSessionResponse](t, body)
	require.NotNil(t, active.Session)
	assert.Equal(t, "Town Hall", active.Session.EventName)

	_, body = env.do(t, http.MethodGet, "/api/sessions/"+active.Session.ID+"/stats", nil)
	assert.Equal(t, 1, decode[SnapshotDTO](t, body).Stats.PresentTotal)

	// Loading again resets first, so the active slot does not conflict.
	resp, _ = env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "town-hall"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScenarios_UnknownScenario(t *testing.T) {
	env := newMemoryEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScenarios_MonthlyReview(t *testing.T) {
	env := newMemoryEnv(t)
	resp, body := env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "monthly-review"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	report, err := env.engine.Reports.MonthlyReport(context.Background(), env.engine.Reports.CurrentMonth())
	require.NoError(t, err)
	require.Len(t, report.Sessions, 2)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "Dept A", report.Rows[0].Department)
	assert.Equal(t, "75", report.Rows[0].AverageRate.String())
	assert.Equal(t, "50", report.Rows[1].AverageRate.String())
}

func TestScenarios_Reset(t *testing.T) {
	env := newMemoryEnv(t)
	env.seedRoster(t)
	env.startSession(t, "Standup")

	resp, _ := env.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := env.do(t, http.MethodGet, "/api/sessions/active", nil)
	assert.JSONEq(t, `{"session":null}`, string(body))
}

func TestStatsRefresher_StartStop(t *testing.T) {
	mem := store.NewMemory()
	engine := attendance.New(mem, attendance.Config{})
	sess, err := engine.Sessions.Start(context.Background(), "Standup", "admin")
	require.NoError(t, err)

	sub := engine.Broadcaster.Subscribe(sess.ID)
	defer sub.Close()

	refresher := NewStatsRefresher(mem, engine.Broadcaster, nil)
	refresher.Interval = 10 * time.Millisecond
	refresher.Start()
	refresher.Start() // second start is a no-op

	select {
	case n := <-sub.C():
		assert.Equal(t, attendance.ReasonRefresh, n.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not publish")
	}

	refresher.Stop()
	refresher.Stop()
}

func TestStatsRefresher_IdleAndDisabled(t *testing.T) {
	mem := store.NewMemory()
	engine := attendance.New(mem, attendance.Config{})

	refresher := NewStatsRefresher(mem, engine.Broadcaster, nil)
	assert.False(t, refresher.RunNow(context.Background()), "no active session, nothing to publish")

	refresher.Interval = 0
	refresher.Start()
	refresher.Stop()
}
