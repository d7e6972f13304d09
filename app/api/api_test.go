package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lysyi3m/ae-comb/app/database"
	"github.com/lysyi3m/ae-comb/app/pipeline"
	"github.com/lysyi3m/ae-comb/app/table"
	"github.com/lysyi3m/ae-comb/app/tasks"
)

const testKey = "secret"

type MockDatasetRepository struct {
	rows *table.Table
	err  error
}

func (m *MockDatasetRepository) ReplaceTable(ctx context.Context, name string, t *table.Table) error {
	m.rows = t
	return nil
}

func (m *MockDatasetRepository) LatestRows(ctx context.Context, name string, limit int) (*table.Table, error) {
	if m.err != nil {
		return nil, m.err
	}
	n := 0
	return m.rows.Filter(func(row int) bool {
		n++
		return n <= limit
	}), nil
}

func (m *MockDatasetRepository) CountRows(ctx context.Context, name string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.rows.NumRows(), nil
}

func (m *MockDatasetRepository) LatestPeriod(ctx context.Context, name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.rows.Value(0, "Period").String(), nil
}

type MockRunLister struct {
	runs []database.Run
}

func (m *MockRunLister) GetRecentRuns(ctx context.Context, limit int) ([]database.Run, error) {
	return m.runs, nil
}

func (m *MockRunLister) GetLastRun(ctx context.Context) (*database.Run, error) {
	if len(m.runs) == 0 {
		return nil, nil
	}
	return &m.runs[0], nil
}

type MockCache struct {
	healthy bool
}

func (m *MockCache) Health(ctx context.Context) map[string]interface{} {
	if !m.healthy {
		return map[string]interface{}{"status": "unhealthy", "type": "redis"}
	}
	return map[string]interface{}{"status": "healthy", "type": "redis"}
}

type MockLastRun struct {
	run *database.Run
}

func (m *MockLastRun) LastRun() *database.Run {
	return m.run
}

type MockScheduler struct {
	queued []tasks.TaskInterface
	err    error
}

func (m *MockScheduler) Start() {}
func (m *MockScheduler) Stop()  {}

func (m *MockScheduler) EnqueueTask(task tasks.TaskInterface) error {
	if m.err != nil {
		return m.err
	}
	m.queued = append(m.queued, task)
	return nil
}

type MockTaskRunner struct{}

func (m *MockTaskRunner) Run(ctx context.Context, start, end string) (*pipeline.Result, error) {
	return nil, nil
}

func sampleRows() *table.Table {
	t := table.New("Period", "Org Code", "A&E attendances Type 1")
	rows := [][]table.Cell{
		{table.Text("2018-06"), table.Text("RA7"), table.Parse("120")},
		{table.Text("2018-05"), table.Text("RA7"), table.Parse("110")},
		{table.Text("2018-04"), table.Text("RA7"), table.Missing()},
	}
	for _, r := range rows {
		if err := t.AppendRow(r); err != nil {
			panic(err)
		}
	}
	return t
}

func sampleRun() *database.Run {
	finished := time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)
	return &database.Run{
		ID:              uuid.New(),
		StartMonth:      "2018-04",
		EndMonth:        "2018-06",
		TableName:       "nhs_ae_attendances",
		Status:          database.RunStatusSucceeded,
		ReleasesFetched: 3,
		RowsWritten:     3,
		StartedAt:       time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt:      &finished,
	}
}

type testServer struct {
	engine    *gin.Engine
	repo      *MockDatasetRepository
	scheduler *MockScheduler
}

func newTestServer(withDB bool, apiKey string) *testServer {
	scheduler := &MockScheduler{}
	repo := &MockDatasetRepository{rows: sampleRows()}

	var datasetRepo database.DatasetRepositoryInterface
	var runRepo RunLister
	if withDB {
		datasetRepo = repo
		runRepo = &MockRunLister{runs: []database.Run{*sampleRun()}}
	}

	handler := NewHandler(datasetRepo, runRepo, &MockLastRun{run: sampleRun()}, scheduler, &MockTaskRunner{},
		HandlerOptions{TableName: "nhs_ae_attendances", StartMonth: "April 2018", Version: "test"})

	return &testServer{
		engine:    NewServer(handler, apiKey),
		repo:      repo,
		scheduler: scheduler,
	}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealthAndStats(t *testing.T) {
	s := newTestServer(true, "")

	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	health := decode(t, w)
	if health["last_run_status"] != "succeeded" {
		t.Errorf("Expected last run status succeeded, got %v", health["last_run_status"])
	}

	w = s.do(http.MethodGet, "/stats", "", nil)
	stats := decode(t, w)
	if stats["rows"] != float64(3) {
		t.Errorf("Expected 3 rows, got %v", stats["rows"])
	}
	if stats["latest_period"] != "2018-06" {
		t.Errorf("Expected latest period 2018-06, got %v", stats["latest_period"])
	}
	lastRun, ok := stats["last_run"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected last_run object, got %v", stats["last_run"])
	}
	if lastRun["duration"] != "5m0s" {
		t.Errorf("Expected duration 5m0s, got %v", lastRun["duration"])
	}
}

func TestStatsAfterRestart(t *testing.T) {
	failed := *sampleRun()
	failed.Status = database.RunStatusFailed
	failed.Error = "no releases located"

	handler := NewHandler(&MockDatasetRepository{rows: sampleRows()}, &MockRunLister{runs: []database.Run{failed}},
		&MockLastRun{}, &MockScheduler{}, &MockTaskRunner{},
		HandlerOptions{TableName: "nhs_ae_attendances", StartMonth: "April 2018", Version: "test"})
	engine := NewServer(handler, "")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	lastRun, ok := decode(t, w)["last_run"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected last_run from the run ledger, got %s", w.Body.String())
	}
	if lastRun["status"] != "failed" || lastRun["error"] != "no releases located" {
		t.Errorf("Unexpected last run %v", lastRun)
	}

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if status := decode(t, w)["last_run_status"]; status != "failed" {
		t.Errorf("Expected last run status failed, got %v", status)
	}
}

func TestHealthReportsCache(t *testing.T) {
	for _, healthy := range []bool{true, false} {
		handler := NewHandler(nil, nil, &MockLastRun{}, &MockScheduler{}, &MockTaskRunner{},
			HandlerOptions{TableName: "nhs_ae_attendances", Version: "test", Cache: &MockCache{healthy: healthy}})

		w := httptest.NewRecorder()
		NewServer(handler, "").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		body := decode(t, w)
		cache, ok := body["cache"].(map[string]interface{})
		if !ok {
			t.Fatalf("Expected cache health, got %v", body)
		}
		expected := "unhealthy"
		if healthy {
			expected = "healthy"
		}
		if cache["status"] != expected {
			t.Errorf("Expected cache status %s, got %v", expected, cache["status"])
		}
		if _, ok := body["last_run_status"]; ok {
			t.Error("Expected no last run without a run ledger")
		}
	}

	w := newTestServer(true, "").do(http.MethodGet, "/health", "", nil)
	if _, ok := decode(t, w)["cache"]; ok {
		t.Error("Expected no cache section without a release cache")
	}
}

func TestStatsWithUnreadableTable(t *testing.T) {
	s := newTestServer(true, "")
	s.repo.err = errors.New("relation does not exist")

	w := s.do(http.MethodGet, "/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if _, ok := decode(t, w)["rows"]; ok {
		t.Error("Expected rows to be omitted")
	}
}

func TestGetLatestRows(t *testing.T) {
	s := newTestServer(true, "")

	w := s.do(http.MethodGet, "/dataset/latest?limit=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Dataset-Rows") != "2" {
		t.Errorf("Expected X-Dataset-Rows 2, got %q", w.Header().Get("X-Dataset-Rows"))
	}

	body := decode(t, w)
	rows := body["rows"].([]interface{})
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	first := rows[0].(map[string]interface{})
	if first["Period"] != "2018-06" || first["A&E attendances Type 1"] != "120" {
		t.Errorf("Unexpected first row %v", first)
	}

	w = s.do(http.MethodGet, "/dataset/latest", "", nil)
	last := decode(t, w)["rows"].([]interface{})[2].(map[string]interface{})
	if last["A&E attendances Type 1"] != nil {
		t.Errorf("Expected missing value as null, got %v", last["A&E attendances Type 1"])
	}

	for _, limit := range []string{"0", "abc", "501"} {
		w = s.do(http.MethodGet, "/dataset/latest?limit="+limit, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, w.Code)
		}
	}

	s.repo.err = errors.New("connection reset")
	w = s.do(http.MethodGet, "/dataset/latest", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestGetLatestRowsWithoutDatabase(t *testing.T) {
	s := newTestServer(false, "")

	w := s.do(http.MethodGet, "/dataset/latest", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	s := newTestServer(true, "")

	w := s.do(http.MethodGet, "/api/runs", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	root := decode(t, s.do(http.MethodGet, "/", "", nil))
	endpoints := root["endpoints"].(map[string]interface{})
	if _, ok := endpoints["refresh"]; ok {
		t.Error("Expected refresh endpoint not to be advertised")
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(true, testKey)

	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-API-Key": testKey}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer " + testKey}, http.StatusOK},
	}

	for _, tc := range cases {
		w := s.do(http.MethodGet, "/api/runs", "", tc.headers)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestAPIListRuns(t *testing.T) {
	auth := map[string]string{"X-API-Key": testKey}

	body := decode(t, newTestServer(true, testKey).do(http.MethodGet, "/api/runs", "", auth))
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 run, got %v", body["total"])
	}
	run := body["runs"].([]interface{})[0].(map[string]interface{})
	if run["start_month"] != "2018-04" || run["status"] != "succeeded" {
		t.Errorf("Unexpected run %v", run)
	}

	// without a database only the in-process run is known
	body = decode(t, newTestServer(false, testKey).do(http.MethodGet, "/api/runs", "", auth))
	if body["total"] != float64(1) {
		t.Errorf("Expected in-process run, got %v", body["total"])
	}
}

func TestAPIRefresh(t *testing.T) {
	auth := map[string]string{"X-API-Key": testKey}
	s := newTestServer(true, testKey)

	w := s.do(http.MethodPost, "/api/refresh", `{"start":"April 2018","end":"June 2018"}`, auth)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["months"] != float64(3) {
		t.Errorf("Expected 3 months, got %v", body["months"])
	}
	if len(s.scheduler.queued) != 1 {
		t.Fatalf("Expected 1 queued task, got %d", len(s.scheduler.queued))
	}
	task := s.scheduler.queued[0].(*tasks.AcquireDatasetTask)
	if task.StartMonth != "April 2018" || task.EndMonth != "June 2018" {
		t.Errorf("Unexpected task range %q - %q", task.StartMonth, task.EndMonth)
	}

	// empty body falls back to the configured start month
	w = s.do(http.MethodPost, "/api/refresh", "", auth)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if s.scheduler.queued[1].(*tasks.AcquireDatasetTask).StartMonth != "April 2018" {
		t.Error("Expected default start month")
	}
}

func TestAPIRefreshRejectsInvalidInput(t *testing.T) {
	auth := map[string]string{"X-API-Key": testKey}
	s := newTestServer(true, testKey)

	bodies := []string{
		`{"start":"Apr 2018"}`,
		`{"start":"June 2018","end":"April 2018"}`,
		`{"start":`,
	}
	for _, b := range bodies {
		w := s.do(http.MethodPost, "/api/refresh", b, auth)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", b, w.Code)
		}
	}
	if len(s.scheduler.queued) != 0 {
		t.Errorf("Expected nothing queued, got %d", len(s.scheduler.queued))
	}

	s.scheduler.err = errors.New("task queue is full")
	w := s.do(http.MethodPost, "/api/refresh", `{"start":"April 2018"}`, auth)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(true, "")

	w := s.do(http.MethodOptions, "/stats", "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
