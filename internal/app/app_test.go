package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hc1node/forkmonitor/config"
	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/hc1node/forkmonitor/internal/usecase"
	"github.com/hc1node/forkmonitor/internal/usecase/webapi"
	"github.com/stretchr/testify/require"
)

const testHash = "a2c1bcd9a1e8cb0e2b8d4c3f6e1fd0b9e6ac2a2b0e0c5f2c3d4b5a69788796a5"

// newNode starts a fake node always reporting the same frontier momentum.
func newNode(t *testing.T, height uint64, hash string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != webapi.FrontierMethod {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		result := `{"height":` + strconv.FormatUint(height, 10) + `,"hash":"` + hash + `","timestamp":1730000000}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// freePort finds a currently unused local TCP port.
func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, nodes ...entity.NodeIdentity) *config.Config {
	return &config.Config{
		App: config.App{Version: "test", Nodes: nodes},
		Poll: config.Poll{
			Interval:    20 * time.Millisecond,
			Timeout:     time.Second,
			HistorySize: 10,
		},
		API: config.API{Host: "127.0.0.1", Port: freePort(t), CORSOrigins: []string{"*"}},
		Log: config.Log{Level: "info"},
	}
}

func TestRun(t *testing.T) {
	first := newNode(t, 100, testHash)
	second := newNode(t, 100, testHash)

	cfg := testConfig(t,
		entity.NodeIdentity{Name: "first", Endpoint: first.URL},
		entity.NodeIdentity{Name: "second", Endpoint: second.URL},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan *usecase.MonitorUseCase, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, func(uc *usecase.MonitorUseCase) { started <- uc })
	}()
	var monitor *usecase.MonitorUseCase
	select {
	case monitor = <-started:
	case err := <-done:
		t.Fatalf("monitor failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor failed to start in time")
	}
	require.Eventually(t, func() bool {
		return len(entity.Agreed(monitor.Snapshot().Consensus)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The REST API serves the same view
	api := "http://127.0.0.1:" + strconv.Itoa(cfg.Port)

	var snap *entity.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = fetchSnapshot(context.Background(), api)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.Len(t, snap.Nodes, 2)
	require.Equal(t, 2, snap.Connected())
	require.Len(t, snap.Consensus, 1)
	require.Equal(t, uint64(100), snap.Consensus[0].Height)
	require.True(t, snap.Consensus[0].HashesMatch)

	out := new(bytes.Buffer)
	require.NoError(t, Status(context.Background(), api+"/", out))
	require.Contains(t, out.String(), "agreed")
	require.Contains(t, out.String(), "first")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor failed to stop in time")
	}
}

func TestRunInvalidNodes(t *testing.T) {
	node := entity.NodeIdentity{Name: "dup", Endpoint: "http://127.0.0.1:1"}
	cfg := testConfig(t, node, node)

	require.Error(t, run(context.Background(), cfg, nil))
}

func TestStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Status(context.Background(), srv.URL, new(bytes.Buffer))
	require.ErrorContains(t, err, "500")
}

func TestResolveTCP(t *testing.T) {
	addr, err := resolveTCP("")
	require.NoError(t, err)
	require.Nil(t, addr)

	addr, err = resolveTCP("127.0.0.1:4150")
	require.NoError(t, err)
	require.Equal(t, 4150, addr.Port)

	_, err = resolveTCP("not an address")
	require.Error(t, err)
}
