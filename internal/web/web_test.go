package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurset/internal/config"
)

const dailyRule = "DURATION:PT1H\nDTSTART:20200101T090000Z\nRRULE:FREQ=DAILY;COUNT=3"

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) *Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "daily.txt")
	require.NoError(t, os.WriteFile(path, []byte(dailyRule), 0o600))

	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Rules = []config.RuleConfig{{ID: "daily", Name: "Daily", Path: path}}
	cfg.BasicAuth = auth

	s := NewServer(cfg, false)
	s.now = func() time.Time { return time.Date(2020, 1, 2, 9, 30, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &config.BasicAuthConfig{Username: "u", Password: "p"})
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	s := newTestServer(t, &config.BasicAuthConfig{Username: "u", Password: "p"})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/rules", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	req.SetBasicAuth("u", "p")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestRules(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rules := decode[[]ruleDTO](t, rec)
	require.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, "daily", r.ID)
	assert.Equal(t, "Daily", r.Name)
	assert.False(t, r.Unbounded)
	assert.False(t, r.Empty)
	require.NotNil(t, r.FirstStart)
	require.NotNil(t, r.LastEnd)
	assert.True(t, r.FirstStart.Equal(time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, r.LastEnd.Equal(time.Date(2020, 1, 3, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "PT1H", r.MinimumDuration)
	assert.Equal(t, "PT1H", r.MaximumDuration)
	assert.Contains(t, r.Text, "FREQ=DAILY")
}

func TestBetween(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/between?id=daily&from=20200101T000000Z&days=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[betweenResponse](t, rec)
	require.Len(t, resp.Intervals, 2)
	assert.True(t, resp.Intervals[0].Start.Equal(time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, resp.Intervals[1].End.Equal(time.Date(2020, 1, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "PT1H", resp.Intervals[0].Duration)
	assert.False(t, resp.Truncated)
}

func TestBetween_WindowClamped(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/between?id=daily&from=20200101T000000Z&days=100000", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[betweenResponse](t, rec)
	assert.True(t, resp.Until.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, resp.Intervals, 3)
	assert.False(t, resp.Truncated)
}

func TestBetween_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	for _, tc := range []struct {
		target string
		status int
	}{
		{"/api/between", http.StatusBadRequest},
		{"/api/between?id=nope", http.StatusNotFound},
		{"/api/between?id=daily&from=someday", http.StatusBadRequest},
		{"/api/between?id=daily&from=2020-01-02T00:00:00Z&until=2020-01-01T00:00:00Z", http.StatusBadRequest},
	} {
		t.Run(tc.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tc.target, "")
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestNext(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/next?id=daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[nextResponse](t, rec)
	require.NotNil(t, resp.Interval)
	assert.True(t, resp.Interval.Start.Equal(time.Date(2020, 1, 3, 9, 0, 0, 0, time.UTC)))

	rec = do(t, h, http.MethodGet, "/api/next?id=daily&after=2020-01-04T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[nextResponse](t, rec).Interval)
}

func TestNormalize(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/normalize",
		`{"text":"DTSTART:20200101T090000Z\nRRULE:FREQ=DAILY;COUNT=2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[ruleDTO](t, rec)
	assert.True(t, strings.HasPrefix(r.Text, "DURATION:PT1H\n"))
	require.NotNil(t, r.LastEnd)
	assert.True(t, r.LastEnd.Equal(time.Date(2020, 1, 2, 10, 0, 0, 0, time.UTC)))

	rec = do(t, h, http.MethodPost, "/api/normalize", `{"text":"BOGUS:1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "BOGUS")

	rec = do(t, h, http.MethodGet, "/api/normalize", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
