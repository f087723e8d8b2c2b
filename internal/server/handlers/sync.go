package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/pkg/api"
)

// maxImportBody ограничивает размер входящего документа (64 MiB).
const maxImportBody = 64 << 20

// SyncEngine определяет интерфейс движка, нужный транспорту
type SyncEngine interface {
	ExportFull(ctx context.Context) (*backup.Document, error)
	ExportDelta(ctx context.Context, since models.Timestamp) (*backup.Document, error)
	ApplyIncoming(ctx context.Context, doc *backup.Document) (*engine.ApplyReport, error)
	State() engine.State
}

// SyncHandler handles peer synchronization requests
type SyncHandler struct {
	logger *slog.Logger
	engine SyncEngine
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, eng SyncEngine) *SyncHandler {
	return &SyncHandler{
		logger: logger,
		engine: eng,
	}
}

// Status обрабатывает GET /status
// Возвращает фиксированную строку: peer проверяет по ней, что отвечает
// именно наше приложение, до того как тянуть данные.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, api.StatusOK)
}

// Export обрабатывает GET /export?deltaSince=timestamp
// Без параметра отдает полный снапшот, с параметром - только записи,
// измененные после timestamp. Параметр since поддерживается как синоним
// для старых клиентов; нечитаемое значение трактуется как отсутствие
// параметра и отдает полный снапшот.
func (h *SyncHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	sinceStr := r.URL.Query().Get("deltaSince")
	if sinceStr == "" {
		sinceStr = r.URL.Query().Get("since")
	}

	var (
		doc *backup.Document
		err error
	)
	if sinceStr == "" {
		doc, err = h.engine.ExportFull(ctx)
	} else if since, perr := strconv.ParseInt(sinceStr, 10, 64); perr != nil {
		h.logger.Warn("Invalid deltaSince parameter, falling back to full export",
			"value", sinceStr, "error", perr)
		doc, err = h.engine.ExportFull(ctx)
	} else {
		doc, err = h.engine.ExportDelta(ctx, since)
	}
	if err != nil {
		h.logger.Error("Failed to build export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		h.logger.Error("Failed to encode export", "error", err)
		return
	}

	h.logger.Info("Export served", "since", sinceStr, "records", doc.Database.Count())
}

// Import обрабатывает POST /import
// Принимает backup-документ от peer-а и применяет его к локальной базе.
// Структурно некорректный документ или документ без секции database
// отклоняется целиком с 400, сбой хранилища возвращает 500 - батч при
// этом не применен даже частично.
func (h *SyncHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
	if err != nil {
		h.logger.Warn("Failed to read import body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	doc, err := backup.Decode(body)
	if err != nil {
		h.logger.Warn("Malformed backup document", "error", err)
		writeError(w, http.StatusBadRequest, "malformed backup document")
		return
	}

	report, err := h.engine.ApplyIncoming(ctx, doc)
	if err != nil {
		if errors.Is(err, engine.ErrMissingDatabase) {
			h.logger.Warn("Import without database section")
			writeError(w, http.StatusBadRequest, "backup document has no database section")
			return
		}

		h.logger.Error("Failed to apply import", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply import")
		return
	}

	resp := api.ImportResponse{
		Applied: report.Applied,
		Stale:   report.Stale,
		Skipped: report.Validation.Total(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode import response", "error", err)
	}

	h.logger.Info("Import completed",
		"applied", resp.Applied,
		"stale", resp.Stale,
		"skipped", resp.Skipped,
	)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}
