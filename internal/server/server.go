// Package server поднимает HTTP-транспорт синхронизации: три эндпоинта
// (/status, /export, /import) поверх стандартного net/http с middleware
// логирования и восстановления после паник.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/forwardsync/internal/server/handlers"
	"github.com/iudanet/forwardsync/internal/server/middleware"
)

// DefaultPort - порт по умолчанию для обмена между устройствами.
const DefaultPort = 8080

// BindError - не удалось занять адрес: порт занят другим процессом либо
// недоступен. Сервер при этом не запущен.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Server - HTTP-сервер синхронизации с управляемым жизненным циклом.
type Server struct {
	logger *slog.Logger
	srv    *http.Server
	ln     net.Listener
}

// New собирает сервер вокруг хендлеров синхронизации.
func New(logger *slog.Logger, h *handlers.SyncHandler) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.Status)
	mux.HandleFunc("/export", h.Export)
	mux.HandleFunc("/import", h.Import)

	var handler http.Handler = mux
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Logging(logger)(handler)

	return &Server{
		logger: logger,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start занимает порт и начинает обслуживать запросы в фоне.
// Возвращает фактический адрес (порт 0 означает "любой свободный").
// Если порт занять не удалось, возвращает BindError.
func (s *Server) Start(port int) (string, error) {
	addr := fmt.Sprintf(":%d", port)

	// Listen отдельно от Serve: ошибка бинда должна вернуться вызывающему
	// синхронно, а не потеряться в горутине.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", &BindError{Addr: addr, Err: err}
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	s.logger.Info("sync server started", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Stop останавливает сервер, дожидаясь активных запросов в пределах ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("sync server stopped")
	return nil
}

// Addr возвращает фактический адрес запущенного сервера.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}
