package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/sample.return/internal/monitoring"
	"github.com/banshee-data/sample.return/internal/rover/l1geom"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/l5decision"
	"github.com/banshee-data/sample.return/internal/rover/pipeline"
	"github.com/banshee-data/sample.return/internal/timeutil"
)

type fakeSource struct {
	mu   sync.Mutex
	view pipeline.View
	m    *l4grid.WorldMap
}

func (f *fakeSource) View() pipeline.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeSource) Map() *l4grid.WorldMap { return f.m }

func (f *fakeSource) setMode(mode l5decision.Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Controller.Mode = mode
}

func newFakeSource(mode l5decision.Mode) *fakeSource {
	m := l4grid.NewWorldMap(l4grid.Config{Size: 20})
	m.Accumulate(
		[]l1geom.Cell{{X: 2, Y: 3}, {X: 4, Y: 4}},
		[]l1geom.Cell{{X: 4, Y: 4}, {X: 10, Y: 10}},
		nil,
	)
	m.Accumulate(nil, []l1geom.Cell{{X: 10, Y: 10}}, nil)
	return &fakeSource{
		view: pipeline.View{
			MissionID:    "m-1",
			Pose:         l1geom.Pose{X: 10, Y: 10, Yaw: 90},
			PerceptionOK: mode != l5decision.ModeError,
			Controller:   l5decision.Status{Mode: mode},
			Cycles:       m.Cycles,
			Coverage:     m.Coverage(),
		},
		m: m,
	}
}

func newTestServer(src Source) *Server {
	return NewServer(ServerConfig{Address: "127.0.0.1:0", Source: src, Gatherer: prometheus.NewRegistry()})
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleState(t *testing.T) {
	s := newTestServer(newFakeSource(l5decision.ModeFollowWall))

	rec := serve(s, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "m-1", got["mission_id"])
	assert.Equal(t, "FOLLOW_WALL", got["controller"].(map[string]any)["mode"])
	assert.Equal(t, 90.0, got["pose"].(map[string]any)["yaw"])
	assert.EqualValues(t, 2, got["cycles"])

	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodPost, "/api/state").Code)
}

func TestHandlers_NoSource(t *testing.T) {
	s := newTestServer(nil)
	for _, path := range []string{"/api/state", "/api/map.png", "/debug/votes"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, path).Code)
		})
	}
}

func TestHandleMapPNG(t *testing.T) {
	s := newTestServer(newFakeSource(l5decision.ModeFindWall))

	rec := serve(s, http.MethodGet, "/api/map.png?size=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	for _, bad := range []string{"abc", "0", "-1", "100"} {
		assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/api/map.png?size="+bad).Code, bad)
	}
}

func TestVoteBalance(t *testing.T) {
	src := newFakeSource(l5decision.ModeFindWall)
	pts, span := VoteBalance(src.m)
	require.Len(t, pts, 3)

	got := map[[2]int]int64{}
	for _, p := range pts {
		v := p.Value.([]interface{})
		got[[2]int{v[0].(int), v[1].(int)}] = v[2].(int64)
	}
	assert.Equal(t, map[[2]int]int64{
		{2, 3}:   1,
		{4, 4}:   0,
		{10, 10}: -2,
	}, got)
	assert.EqualValues(t, 2, span)
}

func TestHandleVoteHeatmap(t *testing.T) {
	s := newTestServer(newFakeSource(l5decision.ModeFindWall))
	rec := serve(s, http.MethodGet, "/debug/votes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Vote Grid")
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	m.Cycles.Add(3)

	s := NewServer(ServerConfig{Source: newFakeSource(l5decision.ModeFindWall), Gatherer: reg})
	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rover_cycles_total 3")
}

func checkHealth(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestSyncHealth(t *testing.T) {
	src := newFakeSource(l5decision.ModeFollowWall)
	s := newTestServer(src)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, s, HealthService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, s, ""))

	src.setMode(l5decision.ModeError)
	s.SyncHealth()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, s, HealthService))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, s, ""))

	src.setMode(l5decision.ModeLostWall)
	s.SyncHealth()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, s, HealthService))

	none := newTestServer(nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, none, HealthService))
}

func TestStart_FollowsModeUntilCancelled(t *testing.T) {
	src := newFakeSource(l5decision.ModeFindWall)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewServer(ServerConfig{
		Address:        "127.0.0.1:0",
		Source:         src,
		Gatherer:       prometheus.NewRegistry(),
		HealthInterval: time.Second,
		Clock:          clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	src.setMode(l5decision.ModeError)
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestMapPlotTitle(t *testing.T) {
	src := newFakeSource(l5decision.ModeFindWall)
	p, err := MapPlot(src.m, nil, nil, "offline")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Title.Text, "offline"))
	assert.Equal(t, 20.0, p.X.Max)
}
