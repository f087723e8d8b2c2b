package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/internal/storage"
)

// Snapshot возвращает согласованный снимок всех записей, включая
// tombstone-ы. Чтение идет в одной read-транзакции, чтобы экспорт не был
// "порван" параллельным коммитом.
func (s *Storage) Snapshot(ctx context.Context) (*models.Database, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	db := &models.Database{}
	db.Normalize()

	if err := s.scanRecords(ctx, tx, db); err != nil {
		return nil, err
	}
	if err := s.scanOrders(ctx, tx, db); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot tx: %w", err)
	}

	return db, nil
}

func (s *Storage) scanRecords(ctx context.Context, tx *sql.Tx, db *models.Database) error {
	query := `
		SELECT id, kind, version, updated_at, synced_at, is_deleted, payload
		FROM records
		ORDER BY kind, id
	`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			meta    models.SyncMeta
			kind    string
			deleted int
			payload []byte
		)
		if err := rows.Scan(&meta.ID, &kind, &meta.Version, &meta.UpdatedAt, &meta.SyncedAt, &deleted, &payload); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		meta.IsDeleted = deleted != 0

		// Колонки версионирования авторитетны: MarkSynced обновляет только
		// их, payload может нести устаревший syncedAt.
		if err := appendRecord(db, models.Kind(kind), payload, meta); err != nil {
			// Запись неизвестного типа (например, из будущей версии
			// приложения) не валит снапшот, просто не попадает в него.
			if errors.Is(err, storage.ErrUnknownKind) {
				continue
			}
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}

	return nil
}

func appendRecord(db *models.Database, kind models.Kind, payload []byte, meta models.SyncMeta) error {
	switch kind {
	case models.KindProject:
		return decodeInto(payload, meta, &db.Projects)
	case models.KindGoal:
		return decodeInto(payload, meta, &db.Goals)
	case models.KindListItem:
		return decodeInto(payload, meta, &db.ListItems)
	case models.KindDocument:
		return decodeInto(payload, meta, &db.Documents)
	case models.KindDocumentItem:
		return decodeInto(payload, meta, &db.DocumentItems)
	case models.KindChecklist:
		return decodeInto(payload, meta, &db.Checklists)
	case models.KindChecklistItem:
		return decodeInto(payload, meta, &db.ChecklistItems)
	case models.KindAttachment:
		return decodeInto(payload, meta, &db.Attachments)
	case models.KindCrossRef:
		return decodeInto(payload, meta, &db.ProjectAttachmentCrossRefs)
	case models.KindActivity:
		return decodeInto(payload, meta, &db.ActivityRecords)
	case models.KindInbox:
		return decodeInto(payload, meta, &db.InboxRecords)
	case models.KindScript:
		return decodeInto(payload, meta, &db.Scripts)
	case models.KindExecutionLog:
		return decodeInto(payload, meta, &db.ProjectExecutionLogs)
	case models.KindRecentEntry:
		return decodeInto(payload, meta, &db.RecentProjectEntries)
	case models.KindLinkItem:
		return decodeInto(payload, meta, &db.LinkItems)
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownKind, kind)
	}
}

// metaHolder реализуется указателем на любую сущность со встроенным
// SyncMeta (метод продвигается с *SyncMeta).
type metaHolder interface {
	SetStoredMeta(meta models.SyncMeta)
}

func decodeInto[T any, PT interface {
	*T
	metaHolder
}](payload []byte, meta models.SyncMeta, dst *[]T) error {
	var rec T
	if err := json.Unmarshal(payload, &rec); err != nil {
		return fmt.Errorf("failed to decode %T payload for %q: %w", rec, meta.ID, err)
	}
	PT(&rec).SetStoredMeta(meta)
	*dst = append(*dst, rec)
	return nil
}

func (s *Storage) scanOrders(ctx context.Context, tx *sql.Tx, db *models.Database) error {
	query := `
		SELECT id, list_id, item_id, item_order, order_version, updated_at, synced_at, is_deleted
		FROM backlog_orders
		ORDER BY list_id, item_order
	`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query backlog orders: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			o       models.BacklogOrder
			deleted int
		)
		if err := rows.Scan(&o.ID, &o.ListID, &o.ItemID, &o.Order, &o.OrderVersion, &o.UpdatedAt, &o.SyncedAt, &deleted); err != nil {
			return fmt.Errorf("failed to scan backlog order: %w", err)
		}
		o.IsDeleted = deleted != 0
		db.BacklogOrders = append(db.BacklogOrders, o)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}

	return nil
}

// ApplyBatch сохраняет батч одной транзакцией. Запись заменяет
// существующую с тем же (kind, id) целиком, включая payload.
func (s *Storage) ApplyBatch(ctx context.Context, batch *models.Database) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := upsertRecords(ctx, tx, models.KindProject, batch.Projects); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindGoal, batch.Goals); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindListItem, batch.ListItems); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindDocument, batch.Documents); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindDocumentItem, batch.DocumentItems); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindChecklist, batch.Checklists); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindChecklistItem, batch.ChecklistItems); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindAttachment, batch.Attachments); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindCrossRef, batch.ProjectAttachmentCrossRefs); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindActivity, batch.ActivityRecords); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindInbox, batch.InboxRecords); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindScript, batch.Scripts); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindExecutionLog, batch.ProjectExecutionLogs); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindRecentEntry, batch.RecentProjectEntries); err != nil {
		return err
	}
	if err := upsertRecords(ctx, tx, models.KindLinkItem, batch.LinkItems); err != nil {
		return err
	}
	if err := upsertOrders(ctx, tx, batch.BacklogOrders); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

func upsertRecords[T models.Versioned](ctx context.Context, tx *sql.Tx, kind models.Kind, recs []T) error {
	if len(recs) == 0 {
		return nil
	}

	query := `
		INSERT INTO records (id, kind, version, updated_at, synced_at, is_deleted, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at,
			is_deleted = excluded.is_deleted,
			payload = excluded.payload
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert for %s: %w", kind, err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %q: %w", kind, rec.RecordID(), err)
		}

		meta := rec.Meta()
		if _, err := stmt.ExecContext(ctx,
			meta.ID,
			string(kind),
			meta.Version,
			meta.UpdatedAt,
			meta.SyncedAt,
			boolToInt(meta.IsDeleted),
			payload,
		); err != nil {
			return fmt.Errorf("failed to upsert %s %q: %w", kind, meta.ID, err)
		}
	}

	return nil
}

func upsertOrders(ctx context.Context, tx *sql.Tx, orders []models.BacklogOrder) error {
	if len(orders) == 0 {
		return nil
	}

	query := `
		INSERT INTO backlog_orders (id, list_id, item_id, item_order, order_version, updated_at, synced_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			list_id = excluded.list_id,
			item_id = excluded.item_id,
			item_order = excluded.item_order,
			order_version = excluded.order_version,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at,
			is_deleted = excluded.is_deleted
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare order upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx,
			o.ID,
			o.ListID,
			o.ItemID,
			o.Order,
			o.OrderVersion,
			o.UpdatedAt,
			o.SyncedAt,
			boolToInt(o.IsDeleted),
		); err != nil {
			return fmt.Errorf("failed to upsert order %q: %w", o.ID, err)
		}
	}

	return nil
}

// MarkSynced проставляет syncedAt всем несинхронизированным записям.
func (s *Storage) MarkSynced(ctx context.Context, at models.Timestamp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	queries := []string{
		`UPDATE records SET synced_at = ? WHERE synced_at IS NULL OR updated_at > synced_at`,
		`UPDATE backlog_orders SET synced_at = ? WHERE synced_at IS NULL OR updated_at > synced_at`,
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query, at); err != nil {
			return fmt.Errorf("failed to mark synced: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mark synced: %w", err)
	}

	return nil
}

// Helper for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
