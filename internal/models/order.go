package models

// BacklogOrder - отдельная версионируемая запись позиции элемента в
// backlog-е. Перестановки происходят намного чаще правок содержимого,
// поэтому позиция версионируется независимо (OrderVersion) и сходится
// независимо от content-версии самого ListItem.
//
// ID совпадает с id элемента, позицию которого запись отслеживает.
type BacklogOrder struct {
	SyncedAt     *Timestamp `json:"syncedAt,omitempty"`
	ID           string     `json:"id"`
	ListID       string     `json:"listId"`
	ItemID       string     `json:"itemId"`
	Order        int64      `json:"order"`
	OrderVersion int64      `json:"orderVersion"`
	UpdatedAt    Timestamp  `json:"updatedAt"`
	IsDeleted    bool       `json:"isDeleted"`
}

// NewerThan сравнивает две order-записи для одного id:
// больший OrderVersion, затем больший UpdatedAt, при полном равенстве
// живая запись предпочтительнее tombstone-а.
func (o BacklogOrder) NewerThan(other BacklogOrder) bool {
	if o.OrderVersion != other.OrderVersion {
		return o.OrderVersion > other.OrderVersion
	}
	if o.UpdatedAt != other.UpdatedAt {
		return o.UpdatedAt > other.UpdatedAt
	}
	return !o.IsDeleted && other.IsDeleted
}

// Unsynced возвращает true, если позиция менялась после последней
// синхронизации (или не синхронизировалась вовсе).
func (o BacklogOrder) Unsynced() bool {
	return o.SyncedAt == nil || o.UpdatedAt > *o.SyncedAt
}

// OrderFromItem синтезирует order-запись из текущего состояния элемента.
// Используется при нормализации, чтобы у каждого элемента всегда была
// ровно одна отслеживаемая позиция.
func OrderFromItem(item ListItem, now Timestamp) BacklogOrder {
	updatedAt := item.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	return BacklogOrder{
		ID:           item.ID,
		ListID:       item.ProjectID,
		ItemID:       item.ID,
		Order:        item.Order,
		OrderVersion: item.Version,
		UpdatedAt:    updatedAt,
		IsDeleted:    item.IsDeleted,
	}
}
