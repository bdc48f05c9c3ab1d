package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/foodie/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// fakeStore is a pingable store whose health can be flipped
type fakeStore struct {
	mu  sync.Mutex
	err error
}

func (f *fakeStore) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func newChecker(store *fakeStore) *metrics.HealthChecker {
	hc := metrics.NewHealthChecker(metrics.ComponentStorage)
	hc.RegisterProbe(metrics.ComponentStorage, store.Ping)
	return hc
}

func TestRoutes(t *testing.T) {
	store := &fakeStore{}
	rpc := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	})
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	s := NewServer(Config{}, Handlers{RPC: rpc, Stream: panicky, Health: newChecker(store)})
	h := s.Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"ready", http.MethodGet, "/ready", http.StatusOK},
		{"live", http.MethodGet, "/live", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"rpc", http.MethodPost, "/api/rpc", http.StatusOK},
		{"rpc wrong method", http.MethodGet, "/api/rpc", http.StatusMethodNotAllowed},
		{"panic recovered", http.MethodGet, "/ws", http.StatusInternalServerError},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestReadyReflectsProbes(t *testing.T) {
	store := &fakeStore{err: errors.New("database is locked")}
	s := NewServer(Config{}, Handlers{Health: newChecker(store)})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status metrics.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "not_ready", status.Status)
	assert.Contains(t, status.Components[metrics.ComponentStorage], "database is locked")

	store.set(nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthResponseFormat(t *testing.T) {
	hc := newChecker(&fakeStore{})
	hc.SetVersion("1.0.0")
	s := NewServer(Config{}, Handlers{Health: hc})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var status metrics.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.0.0", status.Version)
	assert.NotZero(t, status.Timestamp)
	assert.NotEmpty(t, status.Uptime)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return lis
}

func TestServeAndShutdown(t *testing.T) {
	store := &fakeStore{err: errors.New("down")}
	s := NewServer(Config{ReadinessInterval: 20 * time.Millisecond}, Handlers{Health: newChecker(store)})

	httpLis := listen(t)
	grpcLis := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, httpLis, grpcLis) }()

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.Status
	}

	require.Eventually(t, func() bool {
		return check(ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	store.set(nil)
	require.Eventually(t, func() bool {
		return check("") == healthpb.HealthCheckResponse_SERVING &&
			check(ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunFailsOnBadAddress(t *testing.T) {
	lis := listen(t)
	defer lis.Close()

	s := NewServer(Config{HTTPAddr: lis.Addr().String()}, Handlers{})
	err := s.Run(context.Background())
	assert.Error(t, err)
}
