// Package storage определяет границу с локальным хранилищем записей.
// Движок синхронизации работает только через этот интерфейс и не знает,
// чем он реализован.
package storage

import (
	"context"

	"github.com/iudanet/forwardsync/internal/models"
)

// Store - транзакционное локальное хранилище версионируемых записей.
type Store interface {
	// Snapshot возвращает согласованный снимок всех записей всех типов,
	// включая tombstone-ы. Один снимок отражает одну точку во времени,
	// а не состояние, "порванное" параллельными коммитами.
	Snapshot(ctx context.Context) (*models.Database, error)

	// ApplyBatch сохраняет батч записей одной транзакцией: либо
	// применяются все записи, либо (при ошибке хранилища) ни одна.
	// Запись заменяет существующую с тем же id целиком.
	ApplyBatch(ctx context.Context, batch *models.Database) error

	// MarkSynced проставляет syncedAt=at всем записям, измененным после
	// последней синхронизации. Вызывается после успешного обмена с peer-ом.
	MarkSynced(ctx context.Context, at models.Timestamp) error

	// Close закрывает хранилище.
	Close() error
}
