package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"github.com/mir00r/telemetry-demo/internal/config"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "discard"})
	require.NoError(t, err)
	return log
}

func protoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	})
}

func startServer(t *testing.T, cfg config.ServerConfig, handler http.Handler) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	srv, err := New(cfg, handler, testLogger(t))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, listener)
	}()

	return "http://" + listener.Addr().String(), cancel, done
}

func TestServeAndGracefulShutdown(t *testing.T) {
	cfg := config.DefaultConfig().Server
	url, cancel, done := startServer(t, cfg, protoHandler())

	resp, err := http.Get(url + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "HTTP/1.1", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestShutdownWaitsForInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, "finished")
	})

	url, cancel, done := startServer(t, config.DefaultConfig().Server, handler)

	result := make(chan string, 1)
	go func() {
		resp, err := http.Get(url + "/")
		if err != nil {
			result <- err.Error()
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		result <- string(body)
	}()

	<-started
	cancel()

	assert.Equal(t, "finished", <-result)
	assert.NoError(t, <-done)
}

func TestH2CPriorKnowledge(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.H2C = true
	url, cancel, done := startServer(t, cfg, protoHandler())
	defer func() {
		cancel()
		<-done
	}()

	client := &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}

	resp, err := client.Get(url + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 2, resp.ProtoMajor)
	assert.Equal(t, "HTTP/2.0", string(body))
}

func TestRunReportsListenErrors(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	srv, err := New(config.DefaultConfig().Server, protoHandler(), testLogger(t))
	require.NoError(t, err)

	srv.httpServer.Addr = listener.Addr().String()
	err = srv.Run(context.Background())
	assert.Error(t, err)
}
