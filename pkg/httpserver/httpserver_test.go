package httpserver

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
}

func TestServeAndShutdown(t *testing.T) {
	port := freePort(t)
	srv := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}), Addr("127.0.0.1", port))

	var body []byte
	require.Eventually(t, func() bool {
		res, err := http.Get("http://127.0.0.1:" + port + "/")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		body, _ = io.ReadAll(res.Body)
		return true
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "ok", string(body))

	require.NoError(t, srv.Shutdown())
	_, open := <-srv.Notify()
	require.False(t, open)
}

func TestNotifyListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
	srv := New(http.NotFoundHandler(), Addr("127.0.0.1", port))

	select {
	case err := <-srv.Notify():
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen failure not reported")
	}
}
