package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsprint/discovery-engine/internal/config"
	"jobsprint/discovery-engine/internal/dedup"
	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/ratelimit"
	"jobsprint/discovery-engine/internal/scheduler"
	"jobsprint/discovery-engine/internal/score"
	"jobsprint/discovery-engine/internal/server"
	"jobsprint/discovery-engine/internal/source"
	"jobsprint/discovery-engine/internal/storetest"
)

type noopSearcher struct{}

func (noopSearcher) Search(context.Context, source.Query) []model.Posting { return nil }

type noopSender struct{}

func (noopSender) Dispatch(context.Context, model.User) (int, error) { return 0, nil }

func newTestServer(t *testing.T, fake *storetest.Fake) *httptest.Server {
	t.Helper()

	cfg := config.Engine{
		TickSeconds:        30,
		WorkerPoolSize:     1,
		MaxKeywordsPerRun:  3,
		MaxLocationsPerRun: 2,
		MaxResultsPerQuery: 10,
	}
	coord := scheduler.New(fake, noopSearcher{}, score.NewEngine(nil), dedup.New(fake, nil), noopSender{}, cfg)

	mux := http.NewServeMux()
	server.NewHandler(coord, ratelimit.NewGateway(10), "test").RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, storetest.New())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "discovery-engine", body["service"])
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, storetest.New())

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Running        bool              `json:"running"`
		Users          []json.RawMessage `json:"users"`
		RateLimitUsed  int               `json:"rateLimitUsed"`
		RateLimitTotal int               `json:"rateLimitTotal"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Running)
	assert.Empty(t, body.Users)
	assert.Zero(t, body.RateLimitUsed)
	assert.Equal(t, 10, body.RateLimitTotal)
}

func TestStatusRejectsNonGet(t *testing.T) {
	ts := newTestServer(t, storetest.New())

	resp, err := http.Post(ts.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAdminRunRequiresUserParam(t *testing.T) {
	ts := newTestServer(t, storetest.New())

	resp, err := http.Post(ts.URL+"/admin/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRunUnknownUser(t *testing.T) {
	ts := newTestServer(t, storetest.New())

	resp, err := http.Post(ts.URL+"/admin/run?user=nobody", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAdminRunTriggersCycle(t *testing.T) {
	fake := storetest.New()
	fake.AddUser(model.User{ID: "u1", Email: "a@x.io", IsActive: true}, model.SearchCriteria{
		Keywords:         []string{"go"},
		Locations:        []string{"Berlin"},
		FrequencyMinutes: 15,
	})
	ts := newTestServer(t, fake)

	resp, err := http.Post(ts.URL+"/admin/run?user=u1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "u1", body["userId"])
}

func TestAdminRunRejectsGet(t *testing.T) {
	ts := newTestServer(t, storetest.New())

	resp, err := http.Get(ts.URL + "/admin/run?user=u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
