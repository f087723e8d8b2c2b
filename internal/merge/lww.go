// Package merge реализует разрешение конфликтов Last-Write-Wins для
// версионируемых записей. Правило монотонно (состояние двигается только
// в сторону большей пары (version, updatedAt)), поэтому применение батча
// в любом порядке и повторное применение того же батча дают одинаковый
// результат - merge коммутативен и идемпотентен.
package merge

import "github.com/iudanet/forwardsync/internal/models"

// Wins возвращает true, если входящая запись должна заменить локальную:
//  1. incoming.Version > local.Version - принимаем;
//  2. incoming.Version < local.Version - отклоняем;
//  3. версии равны - принимаем только при incoming.UpdatedAt > local.UpdatedAt.
//
// Tombstone не является особым случаем: это обычная запись с IsDeleted=true
// и она конкурирует по тем же правилам.
func Wins(incoming, local models.SyncMeta) bool {
	return incoming.NewerThan(local)
}

// Resolve применяет батч входящих записей к локальному индексу и возвращает
// победителей - записи, которые должны быть сохранены (полная замена
// набора полей, включая payload). Записи внутри батча конкурируют и друг
// с другом: для каждого id выживает максимум одна.
//
// Локальный индекс не модифицируется. Отклоненная запись - не ошибка,
// просто no-op.
func Resolve[T models.Versioned](local map[string]T, incoming []T) []T {
	winners := make(map[string]int, len(incoming)) // id -> позиция в accepted
	accepted := make([]T, 0, len(incoming))

	for _, inc := range incoming {
		id := inc.RecordID()

		// Текущий лучший кандидат: принятый ранее из этого же батча
		// либо локальная запись.
		if pos, ok := winners[id]; ok {
			if inc.Meta().NewerThan(accepted[pos].Meta()) {
				accepted[pos] = inc
			}
			continue
		}

		if loc, ok := local[id]; ok && !inc.Meta().NewerThan(loc.Meta()) {
			continue
		}

		winners[id] = len(accepted)
		accepted = append(accepted, inc)
	}

	return accepted
}
