package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/core/internal/adapters/github"
	"github.com/tripboard/core/internal/adapters/repository"
	"github.com/tripboard/core/internal/domain/entities"
	"github.com/tripboard/core/internal/infrastructure/metrics"
	"github.com/tripboard/core/internal/ports"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

// fakeRemote is a scripted remote backend
type fakeRemote struct {
	doc     *entities.Document
	loadErr error
	saveErr error

	saves   int
	reasons []string
}

func (f *fakeRemote) Load(ctx context.Context) (*entities.Document, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.doc == nil {
		return nil, entities.ErrDocumentNotFound
	}
	return f.doc.Clone()
}

func (f *fakeRemote) Save(ctx context.Context, doc *entities.Document, reason string) (*entities.SaveResult, error) {
	f.saves++
	f.reasons = append(f.reasons, reason)
	if f.saveErr != nil {
		return nil, f.saveErr
	}

	stored, err := doc.Clone()
	if err != nil {
		return nil, err
	}
	f.doc = stored
	return &entities.SaveResult{Backend: entities.BackendGitHub, LastUpdated: doc.LastUpdated, Revision: "sha-1", Attempts: 1}, nil
}

func (f *fakeRemote) Backend() entities.Backend { return entities.BackendGitHub }

func (f *fakeRemote) Describe() string { return "github:octo/trips/data/trip_data.json@main" }

type serviceFixture struct {
	service *DocumentService
	local   *repository.LocalDocumentRepository
	clock   *testClock
	dir     string
}

func newFixture(t *testing.T, remote ports.DocumentRepository, storeMetrics *metrics.StoreMetrics) *serviceFixture {
	t.Helper()

	dir := t.TempDir()
	clock := &testClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}

	local, err := repository.NewLocalDocumentRepository(repository.LocalOptions{
		DocumentPath: filepath.Join(dir, "trip_data.json"),
		BackupDir:    filepath.Join(dir, "backups"),
		MaxBackups:   20,
		Clock:        clock.Now,
	}, nil, storeMetrics)
	require.NoError(t, err)

	opts := DocumentServiceOptions{MirrorLocal: true, Clock: clock.Now}
	service := NewDocumentService(local, remote, opts, nil, storeMetrics)

	return &serviceFixture{service: service, local: local, clock: clock, dir: dir}
}

func (f *serviceFixture) writeDocument(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.local.DocumentPath(), []byte(content), 0o644))
}

func (f *serviceFixture) writeBackup(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.local.BackupDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.local.BackupDir(), name), []byte(content), 0o644))
}

func Test_DocumentService_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	f.writeDocument(t, "{}\n")

	doc, err := entities.DecodeDocument([]byte(`{"meal_proposals": {}, "last_updated": "2025-01-01T00:00:00"}`))
	require.NoError(t, err)

	before := f.clock.now
	_, err = f.service.SaveDocument(ctx, doc, "")
	require.NoError(t, err)

	backups, err := f.service.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, map[string]any{}, loaded.MealProposals)

	updated, err := loaded.LastUpdatedTime()
	require.NoError(t, err)
	require.False(t, updated.Before(before), "last_updated %s must not precede the save call", loaded.LastUpdated)
}

func Test_DocumentService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	doc := entities.NewDocument()
	doc.ActivityProposals["day2"] = map[string]any{"votes": float64(3)}
	doc.AlcoholRequests = append(doc.AlcoholRequests, map[string]any{"item": "Kona Longboard", "qty": float64(12)})
	require.NoError(t, doc.SetBooking("luau", map[string]any{"booked": true}))

	result, err := f.service.SaveDocument(ctx, doc, "Add luau")
	require.NoError(t, err)
	require.Equal(t, entities.BackendLocal, result.Backend)
	require.Equal(t, doc.LastUpdated, result.LastUpdated)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, doc.ActivityProposals, loaded.ActivityProposals)
	require.Equal(t, doc.AlcoholRequests, loaded.AlcoholRequests)
	require.Equal(t, doc.LastUpdated, loaded.LastUpdated)

	booking, ok := loaded.Booking("luau")
	require.True(t, ok)
	require.Equal(t, true, booking["booked"])

	require.Equal(t, entities.LoadSourceLocal, f.service.Status(ctx).LastLoad)
}

func Test_DocumentService_CorruptionRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	f.writeBackup(t, "trip_data_backup_20250101_000000.json", `{"notes": ["old"]}`)
	f.writeBackup(t, "trip_data_backup_20250102_000000.json", `{"notes": ["newest"]}`)
	f.writeDocument(t, `{"notes": [`)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, []any{"newest"}, loaded.Notes)
	require.NotNil(t, loaded.MealProposals, "recovered content is backfilled")
	require.Equal(t, entities.LoadSourceBackup, f.service.Status(ctx).LastLoad)

	// the target file is repaired
	repaired, err := f.local.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"newest"}, repaired.Notes)

	// no backup of the corrupted content was taken
	backups, err := f.service.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
}

func Test_DocumentService_CorruptionWithoutBackup(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	storeMetrics := metrics.NewStoreMetrics(registry)
	f := newFixture(t, nil, storeMetrics)
	f.writeDocument(t, "not json at all")

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, entities.NewDocument(), loaded)
	require.Equal(t, entities.LoadSourceEmpty, f.service.Status(ctx).LastLoad)

	count, err := testutil.GatherAndCount(registry, "tripboard_document_recoveries_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func Test_DocumentService_CorruptBackupAlso(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	f.writeBackup(t, "trip_data_backup_20250101_000000.json", `[1, 2, 3]`)
	f.writeDocument(t, `{`)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, entities.NewDocument(), loaded)
}

func Test_DocumentService_MissingKeyBackfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	f.writeDocument(t, `{"meal_proposals": {"day1": "poke"}, "notes": ["a"], "booking_zipline": {"ok": true}, "last_updated": "2025-01-01T00:00:00"}`)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, map[string]any{}, loaded.ActivityProposals)
	require.Equal(t, map[string]any{"day1": "poke"}, loaded.MealProposals)
	require.Equal(t, []any{"a"}, loaded.Notes)
	require.Equal(t, "2025-01-01T00:00:00", loaded.LastUpdated)
	require.Equal(t, []string{"zipline"}, loaded.BookingIDs())
}

func Test_DocumentService_EmptyStore(t *testing.T) {
	f := newFixture(t, nil, nil)

	loaded := f.service.LoadDocument(context.Background())
	require.Equal(t, entities.NewDocument(), loaded)
}

func Test_DocumentService_RestoreBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	_, err := f.service.SaveDocument(ctx, docWithNotes("v1"), "v1")
	require.NoError(t, err)
	_, err = f.service.SaveDocument(ctx, docWithNotes("v2"), "v2")
	require.NoError(t, err)

	backups, err := f.service.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	v1Backup := backups[0].Filename

	restored, err := f.service.RestoreBackup(ctx, v1Backup)
	require.NoError(t, err)
	require.Equal(t, []any{"v1"}, restored.Notes)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, []any{"v1"}, loaded.Notes)

	// a safety backup holding v2 was taken first
	backups, err = f.service.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	safety, err := f.local.ReadBackup(ctx, backups[0].Filename)
	require.NoError(t, err)
	require.Equal(t, []any{"v2"}, safety.Notes)
}

func Test_DocumentService_RestoreErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	_, err := f.service.RestoreBackup(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, entities.ErrInvalidBackupName)

	_, err = f.service.RestoreBackup(ctx, "trip_data_backup_20990101_000000.json")
	require.ErrorIs(t, err, entities.ErrBackupNotFound)

	f.writeBackup(t, "trip_data_backup_20250101_000000.json", `"string"`)
	_, err = f.service.RestoreBackup(ctx, "trip_data_backup_20250101_000000.json")
	require.ErrorIs(t, err, entities.ErrDocumentCorrupted)
}

func Test_DocumentService_RemotePrimary(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	f := newFixture(t, remote, nil)

	// 404 on the remote is a fresh empty document
	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, entities.NewDocument(), loaded)
	require.Equal(t, entities.BackendGitHub, f.service.Backend())

	result, err := f.service.SaveDocument(ctx, docWithNotes("remote"), "")
	require.NoError(t, err)
	require.Equal(t, entities.BackendGitHub, result.Backend)
	require.Equal(t, []string{DefaultChangeReason}, remote.reasons)

	loaded = f.service.LoadDocument(ctx)
	require.Equal(t, []any{"remote"}, loaded.Notes)
	require.Equal(t, entities.LoadSourceRemote, f.service.Status(ctx).LastLoad)

	// mirrored locally
	mirrored, err := f.local.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"remote"}, mirrored.Notes)

	status := f.service.Status(ctx)
	require.Equal(t, remote.Describe(), status.Remote)
	require.Equal(t, f.local.DocumentPath(), status.DocumentPath)
}

func Test_DocumentService_RemoteLoadFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{loadErr: errors.New("dial tcp: i/o timeout")}
	f := newFixture(t, remote, nil)
	f.writeDocument(t, `{"notes": ["from disk"]}`)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, []any{"from disk"}, loaded.Notes)
	require.Equal(t, entities.LoadSourceLocal, f.service.Status(ctx).LastLoad)
}

func Test_DocumentService_RemoteSaveFailure(t *testing.T) {
	ctx := context.Background()
	conflict := errors.Join(entities.ErrRevisionConflict, errors.New("409"))
	remote := &fakeRemote{saveErr: conflict}
	f := newFixture(t, remote, nil)
	f.writeDocument(t, `{"notes": ["untouched"]}`)

	_, err := f.service.SaveDocument(ctx, docWithNotes("lost"), "conflicting")
	require.ErrorIs(t, err, entities.ErrRevisionConflict)

	// no silent local fallback
	local, err := f.local.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"untouched"}, local.Notes)
}

func Test_DocumentService_RestorePushesRemote(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	f := newFixture(t, remote, nil)
	f.writeDocument(t, `{"notes": ["current"]}`)
	f.writeBackup(t, "trip_data_backup_20250101_000000.json", `{"notes": ["restored"]}`)

	_, err := f.service.RestoreBackup(ctx, "trip_data_backup_20250101_000000.json")
	require.NoError(t, err)
	require.Equal(t, []string{"Restore from backup trip_data_backup_20250101_000000.json"}, remote.reasons)
	require.Equal(t, []any{"restored"}, remote.doc.Notes)

	f.writeDocument(t, `{"notes": ["edited after restore"]}`)
	remote.saveErr = errors.New("boom")
	_, err = f.service.RestoreBackup(ctx, "trip_data_backup_20250101_000000.json")
	require.Error(t, err)
	require.Contains(t, err.Error(), "local document unchanged")

	// a failed push leaves the local file alone
	local, err := f.local.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"edited after restore"}, local.Notes)
}

func Test_DocumentService_UnexpectedShapeIsNotCorruption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	f.writeBackup(t, "trip_data_backup_20250101_000000.json", `{"notes": ["old"]}`)
	current := `{"notes": {"a": 1}, "booking_luau": {"booked": true}, "meal_proposals": {"d1": "poke"}}`
	f.writeDocument(t, current)

	loaded := f.service.LoadDocument(ctx)
	require.Equal(t, entities.LoadSourceLocal, f.service.Status(ctx).LastLoad)
	require.Equal(t, map[string]any{"d1": "poke"}, loaded.MealProposals)
	require.Equal(t, []string{"luau"}, loaded.BookingIDs())
	require.JSONEq(t, `{"a": 1}`, string(loaded.Extra[entities.KeyNotes]))

	// the file was not healed from the backup
	onDisk, err := os.ReadFile(f.local.DocumentPath())
	require.NoError(t, err)
	require.Equal(t, current, string(onDisk))

	// saving it back keeps the value as it was
	_, err = f.service.SaveDocument(ctx, loaded, "keep")
	require.NoError(t, err)
	reloaded, err := f.local.Load(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"a": 1}`, string(reloaded.Extra[entities.KeyNotes]))
	require.Equal(t, []string{"luau"}, reloaded.BookingIDs())
}

// staleStore reports the document as corrupted for the first n loads, as if
// the file had been rewritten right after a bad read.
type staleStore struct {
	ports.LocalStore
	stale int
}

func (s *staleStore) Load(ctx context.Context) (*entities.Document, error) {
	if s.stale > 0 {
		s.stale--
		return nil, entities.ErrDocumentCorrupted
	}
	return s.LocalStore.Load(ctx)
}

func Test_DocumentService_RecoveryRereadsUnderLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	// the newest backup holds the bytes a concurrent save backed up
	f.writeBackup(t, "trip_data_backup_20250102_000000.json", `{"notes": [`)
	f.writeDocument(t, `{"notes": ["fresh"]}`)

	service := NewDocumentService(&staleStore{LocalStore: f.local, stale: 1}, nil, DocumentServiceOptions{Clock: f.clock.Now}, nil, nil)

	loaded := service.LoadDocument(ctx)
	require.Equal(t, []any{"fresh"}, loaded.Notes)
	require.Equal(t, entities.LoadSourceLocal, service.Status(ctx).LastLoad)
}

func Test_DocumentService_SlowRemoteFallsBackToLocal(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	remote, err := github.NewContentsRepository(github.Options{
		Token:   "test-token",
		Owner:   "octo",
		Repo:    "trips",
		Path:    "data/trip_data.json",
		Branch:  "main",
		APIURL:  server.URL,
		Timeout: 200 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	f := newFixture(t, remote, nil)
	f.writeDocument(t, `{"notes": ["from disk"]}`)

	start := time.Now()
	loaded := f.service.LoadDocument(ctx)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, []any{"from disk"}, loaded.Notes)
	require.Equal(t, entities.LoadSourceLocal, f.service.Status(ctx).LastLoad)
}

func Test_DocumentService_NilDocument(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.service.SaveDocument(context.Background(), nil, "")
	require.Error(t, err)
}

func docWithNotes(notes ...any) *entities.Document {
	doc := entities.NewDocument()
	doc.Notes = append(doc.Notes, notes...)
	return doc
}
