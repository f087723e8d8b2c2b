package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/internal/validate"
	"github.com/iudanet/forwardsync/pkg/api"
)

type fakePeer struct {
	statusErr  error
	pullDoc    *backup.Document
	pullErr    error
	pullSince  models.Timestamp
	pushedDoc  *backup.Document
	pushResp   *api.ImportResponse
	pushErr    error
	pushCalled bool
}

func (f *fakePeer) BaseURL() string { return "http://peer:8080" }

func (f *fakePeer) Status(_ context.Context) error { return f.statusErr }

func (f *fakePeer) Pull(_ context.Context, since models.Timestamp) (*backup.Document, error) {
	f.pullSince = since
	return f.pullDoc, f.pullErr
}

func (f *fakePeer) Push(_ context.Context, doc *backup.Document) (*api.ImportResponse, error) {
	f.pushCalled = true
	f.pushedDoc = doc
	return f.pushResp, f.pushErr
}

type fakeEngine struct {
	awaitCalled bool
	resetCalled bool
	appliedDoc  *backup.Document
	report      *engine.ApplyReport
	applyErr    error
	unsynced    *models.Database
	markedAt    models.Timestamp
}

func (f *fakeEngine) BeginAwaitingPeer() { f.awaitCalled = true }
func (f *fakeEngine) Reset()             { f.resetCalled = true }

func (f *fakeEngine) ApplyIncoming(_ context.Context, doc *backup.Document) (*engine.ApplyReport, error) {
	f.appliedDoc = doc
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return f.report, nil
}

func (f *fakeEngine) Unsynced(_ context.Context) (*models.Database, error) {
	return f.unsynced, nil
}

func (f *fakeEngine) MarkSynced(_ context.Context, at models.Timestamp) error {
	f.markedAt = at
	return nil
}

type fakeState struct {
	lastPull  int64
	savedPull int64
	savedPush int64
}

func (f *fakeState) GetLastPull(_ context.Context, _ string) (int64, error) {
	return f.lastPull, nil
}

func (f *fakeState) SaveLastPull(_ context.Context, _ string, ts int64) error {
	f.savedPull = ts
	return nil
}

func (f *fakeState) SaveLastPush(_ context.Context, _ string, ts int64) error {
	f.savedPush = ts
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptyDoc() *backup.Document {
	db := &models.Database{}
	db.Normalize()
	return backup.EncodeFull(db)
}

func dirtyDatabase() *models.Database {
	db := &models.Database{Goals: []models.Goal{
		{SyncMeta: models.SyncMeta{ID: "g1", Version: 2, UpdatedAt: 30}, Text: "dirty"},
	}}
	db.Normalize()
	return db
}

func newService(peer *fakePeer, eng *fakeEngine, state *fakeState) *Service {
	svc := NewService(peer, eng, state, testLogger())
	svc.now = func() models.Timestamp { return 5000 }
	return svc
}

func TestSync_FullCycle(t *testing.T) {
	pulled := &backup.Document{BackupSchemaVersion: backup.SchemaVersion, Database: dirtyDatabase()}
	peer := &fakePeer{
		pullDoc:  pulled,
		pushResp: &api.ImportResponse{Applied: 1},
	}
	eng := &fakeEngine{
		report:   &engine.ApplyReport{Applied: 1, Validation: validate.NewReport()},
		unsynced: dirtyDatabase(),
	}
	state := &fakeState{lastPull: 1234}

	result, err := newService(peer, eng, state).Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, eng.awaitCalled)
	assert.Equal(t, models.Timestamp(1234), peer.pullSince, "delta is requested from the saved mark")
	assert.Same(t, pulled, eng.appliedDoc)

	assert.True(t, peer.pushCalled)
	require.NotNil(t, peer.pushedDoc)
	assert.Equal(t, 1, peer.pushedDoc.Database.Count())

	assert.Equal(t, models.Timestamp(5000), eng.markedAt)
	assert.Equal(t, int64(5000), state.savedPull)
	assert.Equal(t, int64(5000), state.savedPush)

	assert.Equal(t, 1, result.PulledRecords)
	assert.Equal(t, 1, result.AppliedRecords)
	assert.Equal(t, 1, result.PushedRecords)
}

func TestSync_FirstExchangePullsFull(t *testing.T) {
	peer := &fakePeer{pullDoc: emptyDoc()}
	eng := &fakeEngine{
		report:   &engine.ApplyReport{Validation: validate.NewReport()},
		unsynced: func() *models.Database { db := &models.Database{}; db.Normalize(); return db }(),
	}

	_, err := newService(peer, eng, &fakeState{}).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.Timestamp(0), peer.pullSince)
	assert.False(t, peer.pushCalled, "nothing to push, push is skipped")
	assert.Equal(t, models.Timestamp(5000), eng.markedAt, "sync mark is still recorded")
}

func TestSync_UnreachablePeer(t *testing.T) {
	peer := &fakePeer{statusErr: errors.New("connection refused")}
	eng := &fakeEngine{}

	_, err := newService(peer, eng, &fakeState{}).Sync(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
	assert.False(t, eng.awaitCalled, "exchange never starts")
}

func TestSync_PullFailureResetsEngine(t *testing.T) {
	peer := &fakePeer{pullErr: errors.New("timeout")}
	eng := &fakeEngine{}

	_, err := newService(peer, eng, &fakeState{}).Sync(context.Background())

	require.Error(t, err)
	assert.True(t, eng.resetCalled, "engine leaves awaiting state when the peer fails")
}

func TestSync_ApplyFailureStopsExchange(t *testing.T) {
	peer := &fakePeer{pullDoc: emptyDoc()}
	eng := &fakeEngine{applyErr: &engine.StorageError{Op: "import apply", Err: errors.New("disk full")}}
	state := &fakeState{}

	_, err := newService(peer, eng, state).Sync(context.Background())

	require.Error(t, err)
	assert.False(t, peer.pushCalled)
	assert.Zero(t, state.savedPull, "failed exchange leaves marks untouched")
	assert.Zero(t, eng.markedAt)
}
