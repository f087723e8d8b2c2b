package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/internal/validate"
	"github.com/iudanet/forwardsync/pkg/api"
)

// fakeEngine - движок-заглушка для тестов транспорта.
type fakeEngine struct {
	fullDoc    *backup.Document
	deltaDoc   *backup.Document
	deltaSince models.Timestamp
	applyDoc   *backup.Document
	report     *engine.ApplyReport
	err        error
}

func (f *fakeEngine) ExportFull(_ context.Context) (*backup.Document, error) {
	return f.fullDoc, f.err
}

func (f *fakeEngine) ExportDelta(_ context.Context, since models.Timestamp) (*backup.Document, error) {
	f.deltaSince = since
	return f.deltaDoc, f.err
}

func (f *fakeEngine) ApplyIncoming(_ context.Context, doc *backup.Document) (*engine.ApplyReport, error) {
	f.applyDoc = doc
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeEngine) State() engine.State { return engine.StateIdle }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptyDoc() *backup.Document {
	db := &models.Database{}
	db.Normalize()
	return &backup.Document{BackupSchemaVersion: backup.SchemaVersion, Database: db}
}

func TestStatus(t *testing.T) {
	h := NewSyncHandler(testLogger(), &fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.StatusOK, w.Body.String())
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	h := NewSyncHandler(testLogger(), &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestExport_Full(t *testing.T) {
	eng := &fakeEngine{fullDoc: emptyDoc()}
	h := NewSyncHandler(testLogger(), eng)

	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	w := httptest.NewRecorder()

	h.Export(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc backup.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, backup.SchemaVersion, doc.BackupSchemaVersion)
	require.NotNil(t, doc.Database)
}

func TestExport_Delta(t *testing.T) {
	eng := &fakeEngine{deltaDoc: emptyDoc()}
	h := NewSyncHandler(testLogger(), eng)

	req := httptest.NewRequest(http.MethodGet, "/export?deltaSince=12345", nil)
	w := httptest.NewRecorder()

	h.Export(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Timestamp(12345), eng.deltaSince)
}

func TestExport_SinceAlias(t *testing.T) {
	eng := &fakeEngine{deltaDoc: emptyDoc()}
	h := NewSyncHandler(testLogger(), eng)

	req := httptest.NewRequest(http.MethodGet, "/export?since=777", nil)
	w := httptest.NewRecorder()

	h.Export(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Timestamp(777), eng.deltaSince)
}

func TestExport_InvalidSinceFallsBackToFull(t *testing.T) {
	eng := &fakeEngine{fullDoc: emptyDoc()}
	h := NewSyncHandler(testLogger(), eng)

	req := httptest.NewRequest(http.MethodGet, "/export?deltaSince=yesterday", nil)
	w := httptest.NewRecorder()

	h.Export(w, req)

	// Нечитаемый параметр от старого клиента не ошибка.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Timestamp(0), eng.deltaSince, "delta export is never attempted")

	var doc backup.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.NotNil(t, doc.Database)
}

func TestImport_OK(t *testing.T) {
	eng := &fakeEngine{report: &engine.ApplyReport{
		Applied:    3,
		Stale:      1,
		Validation: validate.NewReport(),
	}}
	h := NewSyncHandler(testLogger(), eng)

	body, err := emptyDoc().Marshal()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Import(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Applied)
	assert.Equal(t, 1, resp.Stale)
	assert.Equal(t, 0, resp.Skipped)
	require.NotNil(t, eng.applyDoc)
}

func TestImport_MalformedDocument(t *testing.T) {
	h := NewSyncHandler(testLogger(), &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader([]byte(`{not json`)))
	w := httptest.NewRecorder()

	h.Import(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "malformed")
}

func TestImport_MissingDatabase(t *testing.T) {
	eng := &fakeEngine{err: engine.ErrMissingDatabase}
	h := NewSyncHandler(testLogger(), eng)

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader([]byte(`{"backupSchemaVersion": 2}`)))
	w := httptest.NewRecorder()

	h.Import(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport_StorageFailure(t *testing.T) {
	eng := &fakeEngine{err: &engine.StorageError{Op: "import apply", Err: errors.New("disk full")}}
	h := NewSyncHandler(testLogger(), eng)

	body, err := emptyDoc().Marshal()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Import(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}
