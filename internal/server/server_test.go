package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/server/handlers"
	"github.com/iudanet/forwardsync/internal/storage/sqlite"
	"github.com/iudanet/forwardsync/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger := testLogger()
	eng := engine.New(store, logger)
	return New(logger, handlers.NewSyncHandler(logger, eng))
}

func TestServer_StartAndStop(t *testing.T) {
	srv := newTestServer(t)

	addr, err := srv.Start(0)
	require.NoError(t, err)
	require.NotEmpty(t, addr)
	assert.Equal(t, addr, srv.Addr())

	resp, err := http.Get("http://" + addr + "/status")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.StatusOK, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}

func TestServer_BindError(t *testing.T) {
	first := newTestServer(t)
	addr, err := first.Start(0)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = first.Stop(ctx)
	}()

	// Порт уже занят первым сервером.
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	second := newTestServer(t)
	_, err = second.Start(port)

	require.Error(t, err)
	var bindErr *BindError
	assert.ErrorAs(t, err, &bindErr)
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv := newTestServer(t)

	require.NoError(t, srv.Stop(context.Background()))
}
