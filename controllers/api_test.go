package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"marketsync/config"
	"marketsync/datasource"
	"marketsync/routes"
	"marketsync/scheduler"
	"marketsync/series"
	"marketsync/storage"
)

// stubSource serves three hourly bars for 2023-01-01
type stubSource struct{}

func (s *stubSource) Name() string { return "StubSource" }

func (s *stubSource) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	base := int64(1672531200000)
	var out series.Table
	for i := int64(0); i < 3; i++ {
		ts := base + i*3600000
		if ts < startMs || (endMs != nil && ts >= *endMs) {
			continue
		}
		out = append(out, series.Row{TimeMs: ts, Values: map[string]float64{"close": float64(i)}})
	}
	return out, nil
}

func (s *stubSource) CloseConnections() {}

// stubBackend is a minimal in-memory storage backend
type stubBackend struct {
	mu   sync.Mutex
	data map[string]series.Table
}

func (b *stubBackend) key(id, sub string) string { return sub + "/" + id }

func (b *stubBackend) Name() string { return "StubBackend" }

func (b *stubBackend) Save(id, sub string, table series.Table) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[b.key(id, sub)] = table
	return nil
}

func (b *stubBackend) Load(id, sub string) (series.Table, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	table, ok := b.data[b.key(id, sub)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrDatasetNotFound, sub, id)
	}
	return table, nil
}

func (b *stubBackend) Exists(id, sub string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[b.key(id, sub)]
	return ok
}

func (b *stubBackend) Delete(id, sub string) error { return nil }

func (b *stubBackend) List(sub string) ([]storage.DatasetInfo, error) { return nil, nil }

func (b *stubBackend) TimeRangeOf(id, sub string) (int64, int64, error) { return 0, 0, nil }

func (b *stubBackend) Close() error { return nil }

type testAPI struct {
	router    *gin.Engine
	scheduler *scheduler.Scheduler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:              "0",
		Environment:       "test",
		JWTSecret:         "test-signing-key",
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	}
	config.AppConfig = cfg

	s := scheduler.New(scheduler.Options{MaxWorkers: 2})
	s.RegisterSourceFactory("StubSource", func(config map[string]string) (datasource.DataSource, error) {
		return &stubSource{}, nil
	})
	s.RegisterStorageFactory("StubBackend", func(config map[string]string) (storage.Backend, error) {
		return &stubBackend{data: make(map[string]series.Table)}, nil
	})

	router := gin.New()
	hub := routes.SetupRoutes(router, cfg, s)
	t.Cleanup(hub.Shutdown)
	t.Cleanup(s.Stop)

	return &testAPI{router: router, scheduler: s}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T) string {
	t.Helper()
	w := a.request(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "admin",
		"password": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func stubTaskBody(name string) gin.H {
	return gin.H{
		"name":             name,
		"data_source_name": "StubSource",
		"storage_name":     "StubBackend",
		"symbols":          []string{"BTC/USDT"},
		"timeframe":        "1h",
		"timerange_str":    "20230101-20230102",
	}
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	w := api.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.request(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	api.login(t)
}

func TestTasksRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, http.MethodGet, "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.request(t, http.MethodGet, "/api/v1/tasks", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTaskLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	// create
	w := api.request(t, http.MethodPost, "/api/v1/tasks", token, stubTaskBody("btc-hourly"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "btc-hourly", created["name"])
	assert.Equal(t, "StubSource", created["data_source_name"])
	assert.Equal(t, "created", created["status"])

	// duplicate without overwrite
	w = api.request(t, http.MethodPost, "/api/v1/tasks", token, stubTaskBody("btc-hourly"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// list
	w = api.request(t, http.MethodGet, "/api/v1/tasks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Tasks []map[string]interface{} `json:"tasks"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Count)

	// get
	w = api.request(t, http.MethodGet, "/api/v1/tasks/btc-hourly", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.request(t, http.MethodGet, "/api/v1/tasks/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// start and wait for completion
	w = api.request(t, http.MethodPost, "/api/v1/tasks/btc-hourly/start", token, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		state, err := api.scheduler.GetState("btc-hourly")
		return err == nil && state.Status == scheduler.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// status endpoint reflects the run
	w = api.request(t, http.MethodGet, "/api/v1/tasks/btc-hourly/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		State struct {
			Status   string `json:"status"`
			RunCount int    `json:"run_count"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, scheduler.StatusCompleted, status.State.Status)
	assert.Equal(t, 1, status.State.RunCount)

	// stop with nothing in flight
	w = api.request(t, http.MethodPost, "/api/v1/tasks/btc-hourly/stop", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// delete
	w = api.request(t, http.MethodDelete, "/api/v1/tasks/btc-hourly", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.request(t, http.MethodDelete, "/api/v1/tasks/btc-hourly", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTaskValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	w := api.request(t, http.MethodPost, "/api/v1/tasks", token, gin.H{"name": "incomplete"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := stubTaskBody("bad-tf")
	body["timeframe"] = "2h"
	w = api.request(t, http.MethodPost, "/api/v1/tasks", token, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported timeframe")
}

func TestPluginEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, http.MethodGet, "/api/v1/plugins", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plugins struct {
		DataSources []string `json:"data_sources"`
		Storages    []string `json:"storages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plugins))
	assert.Contains(t, plugins.DataSources, "CryptoSpot")
	assert.Contains(t, plugins.DataSources, "StubSource")
	assert.Contains(t, plugins.Storages, "LocalFile")

	w = api.request(t, http.MethodGet, "/api/v1/plugins/data_source", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.request(t, http.MethodGet, "/api/v1/plugins/bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t)

	w := api.request(t, http.MethodPost, "/api/v1/tasks", token, stubTaskBody("status-probe"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.request(t, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Service             string   `json:"service"`
		Status              string   `json:"status"`
		TasksCount          int      `json:"tasks_count"`
		SupportedTimeframes []string `json:"supported_timeframes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "marketsync", status.Service)
	assert.Equal(t, "stopped", status.Status)
	assert.Equal(t, 1, status.TasksCount)
	assert.Equal(t, scheduler.SupportedTimeframes, status.SupportedTimeframes)

	w = api.request(t, http.MethodGet, "/api/v1/status/tasks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "status-probe")
}
