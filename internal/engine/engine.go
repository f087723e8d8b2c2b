// Package engine связывает кодек, валидацию, merge и хранилище в единый
// цикл синхронизации: экспорт снапшота или дельты наружу и атомарное
// применение входящего документа.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/merge"
	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/internal/storage"
	"github.com/iudanet/forwardsync/internal/validate"
)

// Engine - движок синхронизации одного устройства.
type Engine struct {
	store storage.Store
	log   *slog.Logger
	now   func() models.Timestamp

	// mu сериализует импорты: два конкурентных ApplyIncoming выполняются
	// строго по очереди, каждый видит результат предыдущего.
	mu sync.Mutex

	stateMu sync.Mutex
	state   State
}

// New создает движок поверх хранилища.
func New(store storage.Store, log *slog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log,
		now:   nowMillis,
		state: StateIdle,
	}
}

func nowMillis() models.Timestamp {
	return time.Now().UnixMilli()
}

// ApplyReport - итог применения входящего документа.
type ApplyReport struct {
	// Applied - число записей, сохраненных в хранилище.
	Applied int
	// Stale - число записей, отклоненных как устаревшие (локальная копия
	// новее). Отклонение не ошибка.
	Stale int
	// Validation - статистика записей, пропущенных из-за неразрешимых
	// родительских ссылок.
	Validation *validate.Report
}

// ExportFull строит документ с полным набором записей, включая tombstone-ы.
func (e *Engine) ExportFull(ctx context.Context) (*backup.Document, error) {
	e.setState(StateExporting)
	defer e.setState(StateIdle)

	snapshot, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, &StorageError{Op: "export", Err: err}
	}

	doc := backup.EncodeFull(snapshot)
	e.log.Debug("built full export", "records", doc.Database.Count())
	return doc, nil
}

// ExportDelta строит документ с записями, измененными после since.
func (e *Engine) ExportDelta(ctx context.Context, since models.Timestamp) (*backup.Document, error) {
	e.setState(StateExporting)
	defer e.setState(StateIdle)

	snapshot, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, &StorageError{Op: "export", Err: err}
	}

	doc := backup.EncodeDelta(snapshot, since)
	e.log.Debug("built delta export", "since", since, "records", doc.Database.Count())
	return doc, nil
}

// ApplyIncoming применяет входящий документ: очищает битые ссылки
// проектов, отбрасывает записи с неразрешимыми родителями, разрешает
// конфликты по LWW, сливает позиции backlog-а и сохраняет победителей
// одной транзакцией. Документ без секции database отклоняется целиком
// с ErrMissingDatabase.
func (e *Engine) ApplyIncoming(ctx context.Context, doc *backup.Document) (*ApplyReport, error) {
	if doc.Database == nil {
		return nil, ErrMissingDatabase
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.setState(StateImporting)

	report, err := e.applyDatabase(ctx, doc.Database)
	if err != nil {
		e.setState(StateError)
		return nil, err
	}

	e.setState(StateIdle)
	e.log.Info("applied incoming document",
		"schema_version", doc.BackupSchemaVersion,
		"applied", report.Applied,
		"stale", report.Stale,
		"skipped", report.Validation.Total(),
	)
	return report, nil
}

// applyDatabase - ядро импорта. Вызывается под e.mu.
func (e *Engine) applyDatabase(ctx context.Context, incoming *models.Database) (*ApplyReport, error) {
	snapshot, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, &StorageError{Op: "import snapshot", Err: err}
	}

	known := validate.NewKnown(snapshot)
	vr := validate.NewReport()
	stale := 0

	batch := &models.Database{}

	// Проекты идут первыми: они не отбрасываются, битый parentId
	// очищается, а их id становятся известными для детей.
	batch.Projects = resolveKind(models.KindProject, snapshot.Projects,
		validate.CleanProjects(incoming.Projects, known), &stale)

	// Дальше строго в порядке зависимостей, чтобы ребенок видел родителя
	// из этого же батча.
	batch.Goals = filterAndResolve(models.KindGoal, snapshot.Goals, incoming.Goals, known, vr, &stale)
	batch.ListItems = filterAndResolve(models.KindListItem, snapshot.ListItems, incoming.ListItems, known, vr, &stale)
	batch.Documents = filterAndResolve(models.KindDocument, snapshot.Documents, incoming.Documents, known, vr, &stale)
	batch.DocumentItems = filterAndResolve(models.KindDocumentItem, snapshot.DocumentItems, incoming.DocumentItems, known, vr, &stale)
	batch.Checklists = filterAndResolve(models.KindChecklist, snapshot.Checklists, incoming.Checklists, known, vr, &stale)
	batch.ChecklistItems = filterAndResolve(models.KindChecklistItem, snapshot.ChecklistItems, incoming.ChecklistItems, known, vr, &stale)
	batch.Attachments = filterAndResolve(models.KindAttachment, snapshot.Attachments, incoming.Attachments, known, vr, &stale)
	batch.ProjectAttachmentCrossRefs = filterAndResolve(models.KindCrossRef, snapshot.ProjectAttachmentCrossRefs, incoming.ProjectAttachmentCrossRefs, known, vr, &stale)
	batch.ActivityRecords = filterAndResolve(models.KindActivity, snapshot.ActivityRecords, incoming.ActivityRecords, known, vr, &stale)
	batch.InboxRecords = filterAndResolve(models.KindInbox, snapshot.InboxRecords, incoming.InboxRecords, known, vr, &stale)
	batch.Scripts = filterAndResolve(models.KindScript, snapshot.Scripts, incoming.Scripts, known, vr, &stale)
	batch.ProjectExecutionLogs = filterAndResolve(models.KindExecutionLog, snapshot.ProjectExecutionLogs, incoming.ProjectExecutionLogs, known, vr, &stale)
	batch.RecentProjectEntries = filterAndResolve(models.KindRecentEntry, snapshot.RecentProjectEntries, incoming.RecentProjectEntries, known, vr, &stale)
	batch.LinkItems = filterAndResolve(models.KindLinkItem, snapshot.LinkItems, incoming.LinkItems, known, vr, &stale)

	e.mergeOrders(snapshot, incoming, batch, known, vr, &stale)

	batch.Normalize()
	applied := batch.Count()

	if applied > 0 {
		if err := e.store.ApplyBatch(ctx, batch); err != nil {
			return nil, &StorageError{Op: "import apply", Err: err}
		}
	}

	if vr.Total() > 0 {
		e.log.Warn("referential validation skipped records", "summary", vr.Summary())
	}

	return &ApplyReport{Applied: applied, Stale: stale, Validation: vr}, nil
}

func filterAndResolve[T models.Entity](kind models.Kind, local, incoming []T, known validate.Known, vr *validate.Report, stale *int) []T {
	filtered := validate.Filter(kind, incoming, known, vr)
	return resolveKind(kind, local, filtered, stale)
}

func resolveKind[T models.Versioned](_ models.Kind, local, incoming []T, stale *int) []T {
	accepted := merge.Resolve(models.IndexByID(local), incoming)
	*stale += len(incoming) - len(accepted)
	return accepted
}

// mergeOrders сливает позиции backlog-а и переносит победившие позиции в
// content-записи элементов. Батч дополняется затронутыми элементами и
// полным набором выигравших/синтезированных order-записей.
func (e *Engine) mergeOrders(snapshot, incoming, batch *models.Database, known validate.Known, vr *validate.Report, stale *int) {
	candidates := merge.DedupeOrders(incoming.BacklogOrders)
	candidates = validate.FilterOrders(candidates, known, vr)

	localOrders := make(map[string]models.BacklogOrder, len(snapshot.BacklogOrders))
	for _, o := range snapshot.BacklogOrders {
		localOrders[o.ID] = o
	}

	winners := make([]models.BacklogOrder, 0, len(candidates))
	for _, o := range candidates {
		if loc, ok := localOrders[o.ID]; ok && !o.NewerThan(loc) {
			*stale++
			continue
		}
		winners = append(winners, o)
	}

	// Элемент, чья позиция выиграла, должен попасть в батч даже если его
	// content-запись не менялась: ApplyOrders правит Order прямо в payload.
	inBatch := make(map[string]struct{}, len(batch.ListItems))
	for _, item := range batch.ListItems {
		inBatch[item.ID] = struct{}{}
	}
	localItems := models.IndexByID(snapshot.ListItems)
	items := batch.ListItems
	for _, o := range winners {
		if _, ok := inBatch[o.ID]; ok {
			continue
		}
		if item, ok := localItems[o.ID]; ok {
			items = append(items, item)
			inBatch[o.ID] = struct{}{}
		}
	}
	// Позиция в payload переносится из выигравшей order-записи: входящего
	// победителя либо выжившей локальной. Иначе content-правка peer-а
	// затерла бы Order, который локальная order-запись уже перекрыла.
	effective := make([]models.BacklogOrder, 0, len(winners)+len(snapshot.BacklogOrders))
	effective = append(effective, winners...)
	effective = append(effective, snapshot.BacklogOrders...)
	batch.ListItems = merge.ApplyOrders(items, merge.DedupeOrders(effective))

	// Нормализация: каждый элемент батча получает отслеживаемую позицию,
	// если ее нет ни локально, ни среди победителей.
	tracked := make(map[string]struct{}, len(localOrders)+len(winners))
	for id := range localOrders {
		tracked[id] = struct{}{}
	}
	for _, o := range winners {
		tracked[o.ID] = struct{}{}
	}

	now := e.now()
	orders := winners
	for _, item := range batch.ListItems {
		if _, ok := tracked[item.ID]; ok {
			continue
		}
		orders = append(orders, models.OrderFromItem(item, now))
	}
	batch.BacklogOrders = orders
}

// Unsynced возвращает записи, измененные после последней успешной
// синхронизации. Используется для push-а на peer.
func (e *Engine) Unsynced(ctx context.Context) (*models.Database, error) {
	snapshot, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, &StorageError{Op: "unsynced snapshot", Err: err}
	}

	delta := &models.Database{
		Projects:                   filterUnsynced(snapshot.Projects),
		Goals:                      filterUnsynced(snapshot.Goals),
		ListItems:                  filterUnsynced(snapshot.ListItems),
		Documents:                  filterUnsynced(snapshot.Documents),
		DocumentItems:              filterUnsynced(snapshot.DocumentItems),
		Checklists:                 filterUnsynced(snapshot.Checklists),
		ChecklistItems:             filterUnsynced(snapshot.ChecklistItems),
		Attachments:                filterUnsynced(snapshot.Attachments),
		ProjectAttachmentCrossRefs: filterUnsynced(snapshot.ProjectAttachmentCrossRefs),
		ActivityRecords:            filterUnsynced(snapshot.ActivityRecords),
		InboxRecords:               filterUnsynced(snapshot.InboxRecords),
		Scripts:                    filterUnsynced(snapshot.Scripts),
		ProjectExecutionLogs:       filterUnsynced(snapshot.ProjectExecutionLogs),
		RecentProjectEntries:       filterUnsynced(snapshot.RecentProjectEntries),
		LinkItems:                  filterUnsynced(snapshot.LinkItems),
	}
	for _, o := range snapshot.BacklogOrders {
		if o.Unsynced() {
			delta.BacklogOrders = append(delta.BacklogOrders, o)
		}
	}
	delta.Normalize()
	return delta, nil
}

func filterUnsynced[T models.Versioned](recs []T) []T {
	result := make([]T, 0)
	for _, r := range recs {
		if r.Meta().Unsynced() {
			result = append(result, r)
		}
	}
	return result
}

// MarkSynced фиксирует успешный обмен: всем несинхронизированным записям
// проставляется syncedAt=at.
func (e *Engine) MarkSynced(ctx context.Context, at models.Timestamp) error {
	if err := e.store.MarkSynced(ctx, at); err != nil {
		return &StorageError{Op: "mark synced", Err: err}
	}
	return nil
}
