package merge

import "github.com/iudanet/forwardsync/internal/models"

// Слияние позиций backlog-а. Позиция элемента версионируется отдельно от
// его содержимого (BacklogOrder.OrderVersion), иначе частые перестановки
// затирали бы правки содержимого и наоборот.

// DedupeOrders группирует order-записи по id и оставляет ровно одного
// победителя на группу: больший OrderVersion, затем больший UpdatedAt,
// при полном равенстве живая запись предпочтительнее tombstone-а.
// Порядок результата следует порядку первого вхождения id.
func DedupeOrders(orders []models.BacklogOrder) []models.BacklogOrder {
	seen := make(map[string]int, len(orders))
	result := make([]models.BacklogOrder, 0, len(orders))

	for _, o := range orders {
		pos, ok := seen[o.ID]
		if !ok {
			seen[o.ID] = len(result)
			result = append(result, o)
			continue
		}
		if o.NewerThan(result[pos]) {
			result[pos] = o
		}
	}

	return result
}

// ApplyOrders переносит выигравшие позиции в content-записи элементов.
// Для каждого элемента с соответствующей order-записью:
//   - Order элемента берется из order-записи;
//   - Version поднимается до max(Version, OrderVersion), UpdatedAt - из
//     order-записи, чтобы последующий content-LWW увидел изменение позиции;
//   - tombstone-order помечает элемент удаленным.
//
// Остальные поля payload не меняются. orders должны быть предварительно
// дедуплицированы.
func ApplyOrders(items []models.ListItem, orders []models.BacklogOrder) []models.ListItem {
	byID := make(map[string]models.BacklogOrder, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	result := make([]models.ListItem, len(items))
	for i, item := range items {
		o, ok := byID[item.ID]
		if !ok {
			result[i] = item
			continue
		}

		item.Order = o.Order
		if o.OrderVersion > item.Version {
			item.Version = o.OrderVersion
		}
		item.UpdatedAt = o.UpdatedAt
		if o.IsDeleted {
			item.IsDeleted = true
		}
		result[i] = item
	}

	return result
}

// NormalizeOrders дополняет existing синтезированными order-записями для
// элементов, у которых отслеживаемой позиции еще нет, так что дальше у
// каждого элемента всегда ровно одна order-запись. Возвращает полный
// набор order-записей.
func NormalizeOrders(items []models.ListItem, existing []models.BacklogOrder, now models.Timestamp) []models.BacklogOrder {
	existing = DedupeOrders(existing)

	known := make(map[string]struct{}, len(existing))
	for _, o := range existing {
		known[o.ID] = struct{}{}
	}

	result := existing
	for _, item := range items {
		if _, ok := known[item.ID]; ok {
			continue
		}
		result = append(result, models.OrderFromItem(item, now))
	}

	return result
}
