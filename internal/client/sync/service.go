// Package sync оркестрирует полный цикл обмена с peer-устройством:
// проверка доступности, pull дельты, применение, push локальных
// изменений и фиксация отметок успешного обмена.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/pkg/api"
)

// PeerClient определяет интерфейс HTTP-клиента к peer-у
type PeerClient interface {
	BaseURL() string
	Status(ctx context.Context) error
	Pull(ctx context.Context, since models.Timestamp) (*backup.Document, error)
	Push(ctx context.Context, doc *backup.Document) (*api.ImportResponse, error)
}

// Engine определяет интерфейс движка синхронизации
type Engine interface {
	BeginAwaitingPeer()
	Reset()
	ApplyIncoming(ctx context.Context, doc *backup.Document) (*engine.ApplyReport, error)
	Unsynced(ctx context.Context) (*models.Database, error)
	MarkSynced(ctx context.Context, at models.Timestamp) error
}

// StateStorage определяет интерфейс хранилища отметок обмена
type StateStorage interface {
	GetLastPull(ctx context.Context, peer string) (int64, error)
	SaveLastPull(ctx context.Context, peer string, timestamp int64) error
	SaveLastPush(ctx context.Context, peer string, timestamp int64) error
}

// Result contains sync operation results
type Result struct {
	PulledRecords  int // количество полученных от peer-а записей
	AppliedRecords int // количество примененных записей
	StaleRecords   int // количество отклоненных как устаревшие
	SkippedRecords int // количество пропущенных (неразрешимые родители)
	PushedRecords  int // количество отправленных на peer записей
}

// Service handles synchronization with a peer device
type Service struct {
	client PeerClient
	engine Engine
	state  StateStorage
	logger *slog.Logger
	now    func() models.Timestamp
}

// NewService creates a new sync service
func NewService(client PeerClient, eng Engine, state StateStorage, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		engine: eng,
		state:  state,
		logger: logger,
		now: func() models.Timestamp {
			return time.Now().UnixMilli()
		},
	}
}

// Sync performs a full exchange with the peer
// 1. Проверяет, что peer доступен и отвечает нашим протоколом
// 2. Тянет дельту (или полный снапшот при первом обмене) и применяет ее
// 3. Отправляет локальные несинхронизированные изменения
// 4. Фиксирует отметки успешного обмена
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	peer := s.client.BaseURL()
	s.logger.Info("Starting synchronization", "peer", peer)

	if err := s.client.Status(ctx); err != nil {
		return nil, fmt.Errorf("peer is not reachable: %w", err)
	}

	result := &Result{}

	// Pull
	s.engine.BeginAwaitingPeer()

	lastPull, err := s.state.GetLastPull(ctx, peer)
	if err != nil {
		s.logger.Warn("Failed to get last pull timestamp, using full export", "error", err)
		lastPull = 0
	}

	pullStarted := s.now()
	doc, err := s.client.Pull(ctx, lastPull)
	if err != nil {
		s.engine.Reset()
		return nil, fmt.Errorf("pull failed: %w", err)
	}
	if doc.Database != nil {
		result.PulledRecords = doc.Database.Count()
	}

	report, err := s.engine.ApplyIncoming(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to apply peer changes: %w", err)
	}
	result.AppliedRecords = report.Applied
	result.StaleRecords = report.Stale
	result.SkippedRecords = report.Validation.Total()

	// Отметка pull-а ставится по нашим часам на момент запроса: все, что
	// peer изменит позже, гарантированно попадет в следующую дельту.
	if err := s.state.SaveLastPull(ctx, peer, pullStarted); err != nil {
		s.logger.Warn("Failed to save last pull timestamp", "error", err)
	}

	// Push
	delta, err := s.engine.Unsynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect local changes: %w", err)
	}

	if !delta.IsEmpty() {
		pushDoc := backup.EncodeFull(delta)
		pushResp, err := s.client.Push(ctx, pushDoc)
		if err != nil {
			return nil, fmt.Errorf("push failed: %w", err)
		}
		result.PushedRecords = delta.Count()

		s.logger.Info("Pushed local changes",
			"records", result.PushedRecords,
			"peer_applied", pushResp.Applied,
			"peer_stale", pushResp.Stale,
			"peer_skipped", pushResp.Skipped,
		)
	}

	syncedAt := s.now()
	if err := s.engine.MarkSynced(ctx, syncedAt); err != nil {
		return nil, fmt.Errorf("failed to mark records synced: %w", err)
	}
	if err := s.state.SaveLastPush(ctx, peer, syncedAt); err != nil {
		s.logger.Warn("Failed to save last push timestamp", "error", err)
	}

	s.logger.Info("Synchronization completed",
		"peer", peer,
		"pulled", result.PulledRecords,
		"applied", result.AppliedRecords,
		"stale", result.StaleRecords,
		"skipped", result.SkippedRecords,
		"pushed", result.PushedRecords,
	)

	return result, nil
}
