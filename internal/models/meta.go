package models

import "math"

// Timestamp - время в unix milliseconds. Все поля updatedAt/syncedAt/createdAt
// используют этот формат, он совпадает с wire-форматом backup-документа.
type Timestamp = int64

// SyncMeta содержит общие поля версионирования, встраивается в каждую
// синхронизируемую сущность.
//
// Правило сравнения (LWW): побеждает запись с большим Version,
// при равных Version - с большим UpdatedAt. SyncedAt в разрешении
// конфликтов не участвует, он нужен только для выборки "что изменилось
// с последней синхронизации".
type SyncMeta struct {
	SyncedAt  *Timestamp `json:"syncedAt,omitempty"` // время последней успешной синхронизации, nil = не синхронизировано
	ID        string     `json:"id"`                 // стабильный уникальный идентификатор (UUID)
	Version   int64      `json:"version"`            // монотонно растущая версия, +1 на каждую локальную мутацию
	UpdatedAt Timestamp  `json:"updatedAt"`          // время последней локальной мутации, tie-breaker при равных версиях
	IsDeleted bool       `json:"isDeleted"`          // tombstone: запись не удаляется физически
}

// RecordID возвращает идентификатор записи.
func (m SyncMeta) RecordID() string { return m.ID }

// Meta возвращает поля версионирования. Через этот метод generic-алгоритмы
// (merge, validate) работают с любой сущностью.
func (m SyncMeta) Meta() SyncMeta { return m }

// NewerThan сравнивает две версии по правилу LWW.
// Возвращает true, если m новее other: больший Version выигрывает,
// при равных Version выигрывает больший UpdatedAt.
// Отношение строгое: NewerThan(x, x) == false, что дает идемпотентность merge.
func (m SyncMeta) NewerThan(other SyncMeta) bool {
	if m.Version != other.Version {
		return m.Version > other.Version
	}
	return m.UpdatedAt > other.UpdatedAt
}

// Bump помечает запись как локально измененную: версия +1,
// updatedAt = now, syncedAt сбрасывается.
func (m *SyncMeta) Bump(now Timestamp) {
	if m.Version != math.MaxInt64 {
		m.Version++
	}
	m.UpdatedAt = now
	m.SyncedAt = nil
}

// SoftDelete помечает запись tombstone-ом. Версия поднимается, чтобы
// tombstone выигрывал у устаревших "живых" копий с других устройств.
func (m *SyncMeta) SoftDelete(now Timestamp) {
	m.IsDeleted = true
	m.Bump(now)
}

// SetStoredMeta заменяет поля версионирования целиком. Используется
// хранилищем при чтении: колонки таблицы авторитетнее payload-а.
func (m *SyncMeta) SetStoredMeta(meta SyncMeta) {
	*m = meta
}

// MarkSynced проставляет время успешной синхронизации.
func (m *SyncMeta) MarkSynced(at Timestamp) {
	t := at
	m.SyncedAt = &t
}

// Unsynced возвращает true, если запись изменялась после последней
// синхронизации (или не синхронизировалась вовсе).
func (m SyncMeta) Unsynced() bool {
	return m.SyncedAt == nil || m.UpdatedAt > *m.SyncedAt
}

// Versioned - общий интерфейс синхронизируемой записи.
type Versioned interface {
	RecordID() string
	Meta() SyncMeta
}

// Ref - ссылка на родительскую сущность (foreign key).
type Ref struct {
	Kind Kind
	ID   string
}

// Entity расширяет Versioned родительскими ссылками. Валидатор
// ссылочной целостности отбрасывает запись, если хотя бы одна из ссылок
// не резолвится.
type Entity interface {
	Versioned
	ParentRefs() []Ref
}

// IndexByID строит индекс записей по id. Последняя запись с одинаковым id
// выигрывает только если она новее (как при merge).
func IndexByID[T Versioned](recs []T) map[string]T {
	idx := make(map[string]T, len(recs))
	for _, r := range recs {
		if existing, ok := idx[r.RecordID()]; ok && !r.Meta().NewerThan(existing.Meta()) {
			continue
		}
		idx[r.RecordID()] = r
	}
	return idx
}
