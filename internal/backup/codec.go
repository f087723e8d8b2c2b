// Package backup сериализует базу в единый самоописываемый документ и
// разбирает полученный документ обратно в типизированные батчи записей.
package backup

import (
	"encoding/json"
	"fmt"

	"github.com/iudanet/forwardsync/internal/models"
)

// SchemaVersion - текущая ревизия схемы backup-документа.
// Документы старых ревизий принимаются: отсутствующие коллекции читаются
// как пустые (см. models.Database.Normalize).
const SchemaVersion = 2

// Document - wire-формат полного или дельта-экспорта. Создается по запросу
// для экспорта, потребляется один раз при импорте, никогда не хранится.
type Document struct {
	Database            *models.Database `json:"database"`
	BackupSchemaVersion int              `json:"backupSchemaVersion"`
}

// MalformedDocumentError - структурно некорректный документ. Импорт
// документа, который не удалось разобрать, отклоняется целиком.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed backup document: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// EncodeFull строит документ с полным набором записей всех типов,
// включая tombstone-ы.
func EncodeFull(db *models.Database) *Document {
	snapshot := *db
	snapshot.Normalize()
	return &Document{
		BackupSchemaVersion: SchemaVersion,
		Database:            &snapshot,
	}
}

// EncodeDelta строит документ, содержащий по каждому типу только записи
// с updatedAt > since. Tombstone-ы проходят фильтр наравне с живыми
// записями - удаление тоже изменение.
func EncodeDelta(db *models.Database, since models.Timestamp) *Document {
	delta := &models.Database{
		Projects:                   filterMeta(db.Projects, since),
		Goals:                      filterMeta(db.Goals, since),
		ListItems:                  filterMeta(db.ListItems, since),
		Documents:                  filterMeta(db.Documents, since),
		DocumentItems:              filterMeta(db.DocumentItems, since),
		Checklists:                 filterMeta(db.Checklists, since),
		ChecklistItems:             filterMeta(db.ChecklistItems, since),
		Attachments:                filterMeta(db.Attachments, since),
		ProjectAttachmentCrossRefs: filterMeta(db.ProjectAttachmentCrossRefs, since),
		ActivityRecords:            filterMeta(db.ActivityRecords, since),
		InboxRecords:               filterMeta(db.InboxRecords, since),
		Scripts:                    filterMeta(db.Scripts, since),
		ProjectExecutionLogs:       filterMeta(db.ProjectExecutionLogs, since),
		RecentProjectEntries:       filterMeta(db.RecentProjectEntries, since),
		LinkItems:                  filterMeta(db.LinkItems, since),
		BacklogOrders:              filterOrders(db.BacklogOrders, since),
	}
	return &Document{
		BackupSchemaVersion: SchemaVersion,
		Database:            delta,
	}
}

func filterMeta[T models.Versioned](recs []T, since models.Timestamp) []T {
	result := make([]T, 0, len(recs))
	for _, r := range recs {
		if r.Meta().UpdatedAt > since {
			result = append(result, r)
		}
	}
	return result
}

func filterOrders(orders []models.BacklogOrder, since models.Timestamp) []models.BacklogOrder {
	result := make([]models.BacklogOrder, 0, len(orders))
	for _, o := range orders {
		if o.UpdatedAt > since {
			result = append(result, o)
		}
	}
	return result
}

// Marshal сериализует документ в JSON.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup document: %w", err)
	}
	return data, nil
}

// Decode разбирает документ из JSON. Отсутствующие коллекции читаются как
// пустые (совместимость со старыми ревизиями схемы), незнакомые поля
// игнорируются (совместимость с новыми). Структурно некорректный вход
// возвращает MalformedDocumentError, секция database при этом может
// отсутствовать - ее наличие проверяет вызывающая сторона.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedDocumentError{Err: err}
	}
	if doc.Database != nil {
		doc.Database.Normalize()
	}
	return &doc, nil
}
