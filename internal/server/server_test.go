package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/dayclock"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
	nutritionmock "github.com/EugeneArbatsky/kbju-2026-bot/internal/nutrition/mock"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/storage"
)

type fixture struct {
	srv *httptest.Server
	ai  *nutritionmock.Understanding
	st  *storage.SQLiteStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	require.NoError(t, err)

	ai := &nutritionmock.Understanding{}
	s := New(Config{Store: st, Days: dayclock.New(st), Analyzer: ai, Metrics: metrics})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, ai: ai, st: st}
}

// call posts a tool request and decodes the JSON text of the first content item
// into out. It returns the HTTP status.
func (f *fixture) call(t *testing.T, name string, args map[string]any, out any) int {
	t.Helper()
	body, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || out == nil {
		return resp.StatusCode
	}
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), out))
	return resp.StatusCode
}

func TestLogFoodAndGetDay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ai.AnalyzeResult = []models.Dish{
		{Name: "овсянка", Calories: 300, Protein: 10, Fat: 6, Carbs: 50, Grams: 250},
		{Name: "кофе", Calories: 5},
	}

	var logged LogReport
	status := f.call(t, ToolLogFood, map[string]any{"user_id": "u1", "description": "овсянка и кофе"}, &logged)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, logged.Day.Number)
	assert.Equal(t, []int64{1, 2}, logged.EntryIDs)
	assert.Equal(t, 305, logged.Totals.Calories)
	assert.Equal(t, []string{"овсянка и кофе"}, f.ai.AnalyzeCalls)

	var day DayReport
	require.Equal(t, http.StatusOK, f.call(t, ToolGetDay, map[string]any{"user_id": "u1"}, &day))
	assert.Len(t, day.Entries, 2)
	assert.Equal(t, models.DayTotals{Calories: 305, Protein: 10, Fat: 6, Carbs: 50, Count: 2}, day.Totals)

	var next DayReport
	require.Equal(t, http.StatusOK, f.call(t, ToolNextDay, map[string]any{"user_id": "u1"}, &next))
	assert.Equal(t, 2, next.Day.Number)
	assert.Empty(t, next.Entries)

	var entries []models.FoodEntry
	require.Equal(t, http.StatusOK, f.call(t, ToolListEntries, map[string]any{"user_id": "u1", "limit": 1}, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "кофе", entries[0].Name)
}

func TestToolErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want int
	}{
		{"unknown tool", "log_meal", nil, http.StatusNotFound},
		{"missing user", ToolGetDay, map[string]any{}, http.StatusBadRequest},
		{"missing description", ToolLogFood, map[string]any{"user_id": "u1"}, http.StatusBadRequest},
		{"wrong type", ToolListEntries, map[string]any{"user_id": "u1", "limit": "ten"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.call(t, tc.tool, tc.args, nil))
		})
	}

	f.ai.AnalyzeErr = errors.New("provider down")
	assert.Equal(t, http.StatusInternalServerError,
		f.call(t, ToolLogFood, map[string]any{"user_id": "u1", "description": "суп"}, nil))
}

func TestHTTPSurface(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(f.srv.URL+"/", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.st.Close())
	resp, err = http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	st, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer st.Close()

	s := New(Config{ListenAddr: "127.0.0.1:0", Store: st, Days: dayclock.New(st), Analyzer: &nutritionmock.Understanding{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
