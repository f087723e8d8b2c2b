package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/forwardsync/internal/models"
)

func order(id string, pos, version int64, updatedAt models.Timestamp) models.BacklogOrder {
	return models.BacklogOrder{
		ID:           id,
		ListID:       "p1",
		ItemID:       id,
		Order:        pos,
		OrderVersion: version,
		UpdatedAt:    updatedAt,
	}
}

func TestDedupeOrders(t *testing.T) {
	orders := []models.BacklogOrder{
		order("li1", 1, 1, 10),
		order("li2", 2, 1, 10),
		order("li1", 5, 2, 5),
	}

	deduped := DedupeOrders(orders)

	require.Len(t, deduped, 2)
	assert.Equal(t, int64(5), deduped[0].Order, "higher order version must win the duplicate group")
	assert.Equal(t, "li2", deduped[1].ID, "first-seen order of ids is preserved")
}

func TestDedupeOrders_LivePreferredOnFullTie(t *testing.T) {
	tomb := order("li1", 1, 2, 10)
	tomb.IsDeleted = true
	live := order("li1", 1, 2, 10)

	deduped := DedupeOrders([]models.BacklogOrder{tomb, live})

	require.Len(t, deduped, 1)
	assert.False(t, deduped[0].IsDeleted)
}

func TestApplyOrders(t *testing.T) {
	items := []models.ListItem{
		{SyncMeta: models.SyncMeta{ID: "li1", Version: 1, UpdatedAt: 10}, ProjectID: "p1", Order: 0},
		{SyncMeta: models.SyncMeta{ID: "li2", Version: 1, UpdatedAt: 10}, ProjectID: "p1", Order: 1},
	}
	orders := []models.BacklogOrder{order("li1", 7, 4, 30)}

	result := ApplyOrders(items, orders)

	require.Len(t, result, 2)
	assert.Equal(t, int64(7), result[0].Order)
	assert.Equal(t, int64(4), result[0].Version, "content version is raised to the order version")
	assert.Equal(t, models.Timestamp(30), result[0].UpdatedAt)
	assert.Equal(t, int64(1), result[1].Order, "item without a matching order is untouched")
	assert.Equal(t, int64(1), result[1].Version)
}

func TestApplyOrders_KeepsHigherContentVersion(t *testing.T) {
	items := []models.ListItem{
		{SyncMeta: models.SyncMeta{ID: "li1", Version: 9, UpdatedAt: 10}, ProjectID: "p1"},
	}

	result := ApplyOrders(items, []models.BacklogOrder{order("li1", 3, 2, 30)})

	assert.Equal(t, int64(9), result[0].Version, "content version is never lowered")
	assert.Equal(t, int64(3), result[0].Order)
}

func TestApplyOrders_TombstoneOrderDeletesItem(t *testing.T) {
	items := []models.ListItem{
		{SyncMeta: models.SyncMeta{ID: "li1", Version: 1, UpdatedAt: 10}, ProjectID: "p1"},
	}
	tomb := order("li1", 0, 5, 40)
	tomb.IsDeleted = true

	result := ApplyOrders(items, []models.BacklogOrder{tomb})

	assert.True(t, result[0].IsDeleted)
}

func TestNormalizeOrders(t *testing.T) {
	items := []models.ListItem{
		{SyncMeta: models.SyncMeta{ID: "li1", Version: 2, UpdatedAt: 20}, ProjectID: "p1", Order: 3},
		{SyncMeta: models.SyncMeta{ID: "li2", Version: 1, UpdatedAt: 10}, ProjectID: "p1", Order: 4},
	}
	existing := []models.BacklogOrder{
		order("li1", 3, 2, 20),
		order("li1", 3, 1, 5), // дубликат, должен схлопнуться
	}

	result := NormalizeOrders(items, existing, 100)

	require.Len(t, result, 2)
	assert.Equal(t, "li1", result[0].ID)
	assert.Equal(t, int64(2), result[0].OrderVersion)

	// li2 получил синтезированную позицию
	assert.Equal(t, "li2", result[1].ID)
	assert.Equal(t, int64(4), result[1].Order)
	assert.Equal(t, int64(1), result[1].OrderVersion)
}
