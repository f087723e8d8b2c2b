package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMeta_NewerThan(t *testing.T) {
	tests := []struct {
		name     string
		a        SyncMeta
		b        SyncMeta
		expected bool
	}{
		{
			name:     "higher version wins",
			a:        SyncMeta{Version: 2, UpdatedAt: 5},
			b:        SyncMeta{Version: 1, UpdatedAt: 100},
			expected: true,
		},
		{
			name:     "lower version loses despite newer timestamp",
			a:        SyncMeta{Version: 1, UpdatedAt: 100},
			b:        SyncMeta{Version: 2, UpdatedAt: 5},
			expected: false,
		},
		{
			name:     "equal versions use updatedAt tie-breaker",
			a:        SyncMeta{Version: 1, UpdatedAt: 20},
			b:        SyncMeta{Version: 1, UpdatedAt: 10},
			expected: true,
		},
		{
			name:     "identical meta is not newer",
			a:        SyncMeta{Version: 1, UpdatedAt: 10},
			b:        SyncMeta{Version: 1, UpdatedAt: 10},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.NewerThan(tt.b))
		})
	}
}

func TestSyncMeta_Bump(t *testing.T) {
	syncedAt := Timestamp(50)
	m := SyncMeta{ID: "a", Version: 3, UpdatedAt: 50, SyncedAt: &syncedAt}

	m.Bump(100)

	assert.Equal(t, int64(4), m.Version)
	assert.Equal(t, Timestamp(100), m.UpdatedAt)
	assert.Nil(t, m.SyncedAt, "bump must reset syncedAt")
	assert.True(t, m.Unsynced())
}

func TestSyncMeta_SoftDelete(t *testing.T) {
	m := SyncMeta{ID: "a", Version: 1, UpdatedAt: 10}

	m.SoftDelete(20)

	assert.True(t, m.IsDeleted)
	assert.Equal(t, int64(2), m.Version, "tombstone must outrank the live copy")
	assert.Equal(t, Timestamp(20), m.UpdatedAt)
}

func TestSyncMeta_Unsynced(t *testing.T) {
	syncedAt := Timestamp(100)

	never := SyncMeta{UpdatedAt: 10}
	assert.True(t, never.Unsynced(), "record without syncedAt is unsynced")

	clean := SyncMeta{UpdatedAt: 90, SyncedAt: &syncedAt}
	assert.False(t, clean.Unsynced())

	dirty := SyncMeta{UpdatedAt: 150, SyncedAt: &syncedAt}
	assert.True(t, dirty.Unsynced(), "record changed after sync is unsynced")
}

func TestIndexByID(t *testing.T) {
	recs := []Goal{
		{SyncMeta: SyncMeta{ID: "g1", Version: 1, UpdatedAt: 10}, Text: "old"},
		{SyncMeta: SyncMeta{ID: "g2", Version: 1, UpdatedAt: 10}, Text: "other"},
		{SyncMeta: SyncMeta{ID: "g1", Version: 2, UpdatedAt: 5}, Text: "new"},
	}

	idx := IndexByID(recs)

	require.Len(t, idx, 2)
	assert.Equal(t, "new", idx["g1"].Text, "newer duplicate must win the index slot")
}

func TestBacklogOrder_NewerThan(t *testing.T) {
	tests := []struct {
		name     string
		a        BacklogOrder
		b        BacklogOrder
		expected bool
	}{
		{
			name:     "higher order version wins",
			a:        BacklogOrder{OrderVersion: 3, UpdatedAt: 1},
			b:        BacklogOrder{OrderVersion: 2, UpdatedAt: 99},
			expected: true,
		},
		{
			name:     "equal versions use updatedAt",
			a:        BacklogOrder{OrderVersion: 2, UpdatedAt: 10},
			b:        BacklogOrder{OrderVersion: 2, UpdatedAt: 5},
			expected: true,
		},
		{
			name:     "full tie prefers live record over tombstone",
			a:        BacklogOrder{OrderVersion: 2, UpdatedAt: 10},
			b:        BacklogOrder{OrderVersion: 2, UpdatedAt: 10, IsDeleted: true},
			expected: true,
		},
		{
			name:     "full tie between live records is not newer",
			a:        BacklogOrder{OrderVersion: 2, UpdatedAt: 10},
			b:        BacklogOrder{OrderVersion: 2, UpdatedAt: 10},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.NewerThan(tt.b))
		})
	}
}

func TestOrderFromItem(t *testing.T) {
	item := ListItem{
		SyncMeta:  SyncMeta{ID: "li1", Version: 4, UpdatedAt: 70},
		ProjectID: "p1",
		Order:     12,
	}

	o := OrderFromItem(item, 100)

	assert.Equal(t, "li1", o.ID)
	assert.Equal(t, "li1", o.ItemID)
	assert.Equal(t, "p1", o.ListID)
	assert.Equal(t, int64(12), o.Order)
	assert.Equal(t, int64(4), o.OrderVersion)
	assert.Equal(t, Timestamp(70), o.UpdatedAt, "item updatedAt is carried over when set")

	fresh := ListItem{SyncMeta: SyncMeta{ID: "li2"}, ProjectID: "p1"}
	assert.Equal(t, Timestamp(100), OrderFromItem(fresh, 100).UpdatedAt, "zero updatedAt falls back to now")
}
