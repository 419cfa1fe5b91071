// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MKhiriev/go-confluence-sync/internal/adapter"
	"github.com/MKhiriev/go-confluence-sync/internal/fingerprint"
	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/MKhiriev/go-confluence-sync/internal/mock"
	"github.com/MKhiriev/go-confluence-sync/internal/store"
	"github.com/MKhiriev/go-confluence-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type syncFixture struct {
	syncer  *syncer
	content store.ContentStore
	state   store.StateStore
	remote  *mock.MockRemoteStore
}

// newSyncFixture builds a syncer over real temp-dir stores and a mocked
// remote.
func newSyncFixture(t *testing.T, ctrl *gomock.Controller) *syncFixture {
	t.Helper()

	content, err := store.NewContentStore(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	state, err := store.NewStateStore(t.TempDir())
	require.NoError(t, err)

	remote := mock.NewMockRemoteStore(ctrl)
	s := NewSyncer(content, state, remote, NewChangeDetector(), NewConflictResolver(), logger.Nop(), 4, 2).(*syncer)

	return &syncFixture{syncer: s, content: content, state: state, remote: remote}
}

func (f *syncFixture) writeLocal(t *testing.T, localID, remoteID, title, body string) string {
	t.Helper()
	doc := models.PageDocument{RemoteID: remoteID, Title: title, Body: body}
	payload, err := doc.Marshal()
	require.NoError(t, err)
	require.NoError(t, f.content.Write(localID, payload))
	return fingerprint.Sum(doc.CanonicalContent())
}

func (f *syncFixture) putRecord(t *testing.T, localID, remoteID string, version int64, hash string) {
	t.Helper()
	require.NoError(t, f.state.Put(models.SyncRecord{
		LocalID:           localID,
		RemoteID:          remoteID,
		LastSyncedHash:    hash,
		LastSyncedVersion: version,
		LastSyncedAt:      time.Now().UTC(),
	}))
}

func remoteHash(title, body string) string {
	return fingerprint.Sum(models.PageDocument{Title: title, Body: body}.CanonicalContent())
}

func resultFor(t *testing.T, report models.PassReport, localID string) models.ItemResult {
	t.Helper()
	for _, res := range report.Results {
		if res.LocalID == localID {
			return res
		}
	}
	t.Fatalf("no result for %s in pass report", localID)
	return models.ItemResult{}
}

// ─── push paths ───

func TestSyncer_RunPass_FirstPushCreatesPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)
	ctx := context.Background()

	hash := f.writeLocal(t, "getting-started", "", "Getting Started", "<p>hello</p>")

	f.remote.EXPECT().List(gomock.Any()).Return(nil, nil)
	f.remote.EXPECT().Create(gomock.Any(), "Getting Started", "<p>hello</p>").
		Return(models.RemotePageState{RemoteID: "p1", Title: "Getting Started", Version: 1, Hash: hash}, nil)

	report, err := f.syncer.RunPass(ctx, DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, models.Committed, report.State)

	res := resultFor(t, report, "getting-started")
	assert.Equal(t, models.LocalOnly, res.Classification)
	assert.Equal(t, models.ActionPushed, res.Action)
	require.NoError(t, res.Err)

	// запись фиксирует новую привязку
	rec, err := f.state.Get("getting-started")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.RemoteID)
	assert.EqualValues(t, 1, rec.LastSyncedVersion)
	assert.Equal(t, hash, rec.LastSyncedHash)

	// the local file now carries the assigned remote identifier
	raw, _, err := f.content.Read("getting-started")
	require.NoError(t, err)
	doc, err := models.UnmarshalPageDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "p1", doc.RemoteID)
}

func TestSyncer_RunPass_LocalEditPushesWithExpectedVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	oldHash := remoteHash("Guide", "<p>old</p>")
	newHash := f.writeLocal(t, "guide", "p1", "Guide", "<p>new</p>")
	f.putRecord(t, "guide", "p1", 3, oldHash)

	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 3, Hash: oldHash}}, nil)
	f.remote.EXPECT().Update(gomock.Any(), "p1", "Guide", "<p>new</p>", int64(3)).Return(int64(4), nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.ActionPushed, res.Action)

	rec, err := f.state.Get("guide")
	require.NoError(t, err)
	assert.EqualValues(t, 4, rec.LastSyncedVersion)
	assert.Equal(t, newHash, rec.LastSyncedHash)
}

func TestSyncer_RunPass_VersionConflictRefetchesAndRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	oldHash := remoteHash("Guide", "<p>old</p>")
	f.writeLocal(t, "guide", "p1", "Guide", "<p>new</p>")
	f.putRecord(t, "guide", "p1", 3, oldHash)

	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 3, Hash: oldHash}}, nil)

	// First update is rejected spuriously; the re-fetch shows the page
	// untouched at the last-synced state, so the push is retried, not
	// applied blindly.
	gomock.InOrder(
		f.remote.EXPECT().Update(gomock.Any(), "p1", "Guide", "<p>new</p>", int64(3)).
			Return(int64(0), adapter.ErrVersionConflict),
		f.remote.EXPECT().Get(gomock.Any(), "p1").
			Return(models.RemotePage{RemoteID: "p1", Title: "Guide", Body: "<p>old</p>", Version: 3}, nil),
		f.remote.EXPECT().Update(gomock.Any(), "p1", "Guide", "<p>new</p>", int64(3)).
			Return(int64(4), nil),
	)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.ActionPushed, res.Action)
	require.NoError(t, res.Err)

	rec, err := f.state.Get("guide")
	require.NoError(t, err)
	assert.EqualValues(t, 4, rec.LastSyncedVersion)
}

func TestSyncer_RunPass_VersionConflictLosesToAdvancedRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	oldHash := remoteHash("Guide", "<p>old</p>")
	f.writeLocal(t, "guide", "p1", "Guide", "<p>new</p>")
	f.putRecord(t, "guide", "p1", 3, oldHash)

	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 3, Hash: oldHash}}, nil)

	// The competing writer genuinely advanced the page; version ordering
	// makes the remote authoritative and the local edit is discarded.
	winner := models.RemotePage{RemoteID: "p1", Title: "Guide", Body: "<p>winner</p>", Version: 4}
	gomock.InOrder(
		f.remote.EXPECT().Update(gomock.Any(), "p1", "Guide", "<p>new</p>", int64(3)).
			Return(int64(0), adapter.ErrVersionConflict),
		f.remote.EXPECT().Get(gomock.Any(), "p1").Return(winner, nil),
		f.remote.EXPECT().Get(gomock.Any(), "p1").Return(winner, nil),
	)
	f.remote.EXPECT().ListAttachments(gomock.Any(), "p1").Return(nil, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.ActionPulled, res.Action)

	raw, _, err := f.content.Read("guide")
	require.NoError(t, err)
	doc, err := models.UnmarshalPageDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "<p>winner</p>", doc.Body)

	rec, err := f.state.Get("guide")
	require.NoError(t, err)
	assert.EqualValues(t, 4, rec.LastSyncedVersion)
}

func TestSyncer_RunPass_PushRecreatesDeletedPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	oldHash := remoteHash("Guide", "<p>old</p>")
	hash := f.writeLocal(t, "guide", "p1", "Guide", "<p>edited</p>")
	f.putRecord(t, "guide", "p1", 3, oldHash)

	// The remote page is gone while the local copy was edited: the edit
	// survives as a fresh page.
	f.remote.EXPECT().List(gomock.Any()).Return(nil, nil)
	f.remote.EXPECT().Create(gomock.Any(), "Guide", "<p>edited</p>").
		Return(models.RemotePageState{RemoteID: "p2", Title: "Guide", Version: 1, Hash: hash}, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.BothChanged, res.Classification)
	assert.Equal(t, models.ActionPushed, res.Action)

	rec, err := f.state.Get("guide")
	require.NoError(t, err)
	assert.Equal(t, "p2", rec.RemoteID)
}

// ─── pull paths ───

func TestSyncer_RunPass_RemoteEditIsPulled(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	oldHash := f.writeLocal(t, "guide", "p1", "Guide", "<p>old</p>")
	f.putRecord(t, "guide", "p1", 3, oldHash)

	newBody := "<p>rewritten</p>"
	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 5, Hash: remoteHash("Guide", newBody)}}, nil)
	f.remote.EXPECT().Get(gomock.Any(), "p1").
		Return(models.RemotePage{RemoteID: "p1", Title: "Guide", Body: newBody, Version: 5}, nil)
	f.remote.EXPECT().ListAttachments(gomock.Any(), "p1").Return(nil, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.RemoteOnly, res.Classification)
	assert.Equal(t, models.ActionPulled, res.Action)

	raw, _, err := f.content.Read("guide")
	require.NoError(t, err)
	doc, err := models.UnmarshalPageDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, newBody, doc.Body)

	rec, err := f.state.Get("guide")
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec.LastSyncedVersion)
}

func TestSyncer_RunPass_NewRemotePageAdoptedByTitle(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	body := "<p>welcome</p>"
	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p7", Title: "Team Handbook", Version: 2, Hash: remoteHash("Team Handbook", body)}}, nil)
	f.remote.EXPECT().Get(gomock.Any(), "p7").
		Return(models.RemotePage{RemoteID: "p7", Title: "Team Handbook", Body: body, Version: 2}, nil)
	f.remote.EXPECT().ListAttachments(gomock.Any(), "p7").Return(nil, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	// локальный идентификатор выводится из заголовка страницы
	res := resultFor(t, report, "team-handbook")
	assert.Equal(t, models.RemoteOnly, res.Classification)
	assert.Equal(t, models.ActionPulled, res.Action)
	assert.True(t, f.content.Exists("team-handbook"))
}

// ─── conflicts ───

func TestSyncer_RunPass_BothChangedKeepsNewerRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	syncedHash := remoteHash("Guide", "<p>synced</p>")
	f.writeLocal(t, "guide", "p1", "Guide", "<p>local edit</p>")
	f.putRecord(t, "guide", "p1", 3, syncedHash)

	remoteBody := "<p>remote edit</p>"
	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 5, Hash: remoteHash("Guide", remoteBody)}}, nil)
	f.remote.EXPECT().Get(gomock.Any(), "p1").
		Return(models.RemotePage{RemoteID: "p1", Title: "Guide", Body: remoteBody, Version: 5}, nil)
	f.remote.EXPECT().ListAttachments(gomock.Any(), "p1").Return(nil, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.BothChanged, res.Classification)
	assert.Equal(t, models.ActionPulled, res.Action)

	// the local edit was overwritten by the authoritative remote version
	raw, _, err := f.content.Read("guide")
	require.NoError(t, err)
	doc, err := models.UnmarshalPageDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, remoteBody, doc.Body)
}

func TestSyncer_RunPass_AmbiguousConflictIsHeldUntilAck(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	syncedHash := remoteHash("Guide", "<p>synced</p>")
	f.writeLocal(t, "guide", "p1", "Guide", "<p>local edit</p>")
	f.putRecord(t, "guide", "p1", 3, syncedHash)

	// Same version as the record, diverged content: no side can win.
	drifted := []models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 3, Hash: remoteHash("Guide", "<p>drifted</p>")}}
	f.remote.EXPECT().List(gomock.Any()).Return(drifted, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.ActionHeld, res.Action)
	require.NoError(t, res.Err)

	// ничего не перезаписано
	raw, _, err := f.content.Read("guide")
	require.NoError(t, err)
	doc, err := models.UnmarshalPageDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "<p>local edit</p>", doc.Body)
	assert.Contains(t, f.syncer.HeldConflicts(), "guide")

	// the next pass does not touch the held item either
	f.remote.EXPECT().List(gomock.Any()).Return(drifted, nil)
	report, err = f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, models.ActionHeld, resultFor(t, report, "guide").Action)

	// after acknowledgement the item is resolved again
	require.NoError(t, f.syncer.Acknowledge("guide"))
	assert.Empty(t, f.syncer.HeldConflicts())
	assert.ErrorIs(t, f.syncer.Acknowledge("guide"), ErrNoSuchConflict)
}

// ─── deletions ───

func TestSyncer_RunPass_LocalDeletePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	syncedHash := remoteHash("Old Page", "<p>bye</p>")
	f.putRecord(t, "old-page", "p1", 3, syncedHash)

	listing := []models.RemotePageState{{RemoteID: "p1", Title: "Old Page", Version: 3, Hash: syncedHash}}
	f.remote.EXPECT().List(gomock.Any()).Return(listing, nil)
	f.remote.EXPECT().Delete(gomock.Any(), "p1").Return(nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "old-page")
	assert.Equal(t, models.LocallyDeleted, res.Classification)
	assert.Equal(t, models.ActionDeletedRemote, res.Action)

	_, err = f.state.Get("old-page")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	// A lagging remote listing must not resurrect the page.
	f.remote.EXPECT().List(gomock.Any()).Return(listing, nil)
	report, err = f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestSyncer_RunPass_RemoteDeletePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	hash := f.writeLocal(t, "old-page", "p1", "Old Page", "<p>bye</p>")
	f.putRecord(t, "old-page", "p1", 3, hash)

	f.remote.EXPECT().List(gomock.Any()).Return(nil, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "old-page")
	assert.Equal(t, models.RemotelyDeleted, res.Classification)
	assert.Equal(t, models.ActionDeletedLocal, res.Action)
	assert.False(t, f.content.Exists("old-page"))
}

// ─── pass mechanics ───

func TestSyncer_RunPass_UnchangedItemIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	hash := f.writeLocal(t, "guide", "p1", "Guide", "<p>stable</p>")
	f.putRecord(t, "guide", "p1", 3, hash)

	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 3, Hash: hash}}, nil).Times(2)

	for i := 0; i < 2; i++ {
		report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
		require.NoError(t, err)
		res := resultFor(t, report, "guide")
		assert.Equal(t, models.Unchanged, res.Classification)
		assert.Equal(t, models.ActionNone, res.Action)
	}
}

func TestSyncer_RunPass_MatchingSidesAreAdopted(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	// Local file and remote page already agree, but no record binds them.
	hash := f.writeLocal(t, "guide", "p1", "Guide", "<p>same</p>")
	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p1", Title: "Guide", Version: 7, Hash: hash}}, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)

	res := resultFor(t, report, "guide")
	assert.Equal(t, models.ActionAdopted, res.Action)

	rec, err := f.state.Get("guide")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.RemoteID)
	assert.EqualValues(t, 7, rec.LastSyncedVersion)
}

func TestSyncer_RunPass_ScanFailureAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	hash := f.writeLocal(t, "guide", "p1", "Guide", "<p>edit</p>")
	f.putRecord(t, "guide", "p1", 3, hash)

	f.remote.EXPECT().List(gomock.Any()).Return(nil, adapter.ErrRemoteUnavailable)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	assert.ErrorIs(t, err, ErrPassAborted)
	assert.Equal(t, models.Aborted, report.State)
	assert.Empty(t, report.Results)
}

func TestSyncer_RunPass_ItemFailureDoesNotStopOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	f.writeLocal(t, "failing", "", "Failing", "<p>a</p>")
	hashOK := f.writeLocal(t, "healthy", "", "Healthy", "<p>b</p>")

	f.remote.EXPECT().List(gomock.Any()).Return(nil, nil)
	f.remote.EXPECT().Create(gomock.Any(), "Failing", gomock.Any()).
		Return(models.RemotePageState{}, errors.New("remote exploded"))
	f.remote.EXPECT().Create(gomock.Any(), "Healthy", gomock.Any()).
		Return(models.RemotePageState{RemoteID: "p2", Version: 1, Hash: hashOK}, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, models.Committed, report.State)

	failing := resultFor(t, report, "failing")
	assert.ErrorIs(t, failing.Err, ErrSyncItemFailed)
	assert.Equal(t, models.ActionPushed, resultFor(t, report, "healthy").Action)
	assert.Len(t, report.Failed(), 1)
}

func TestSyncer_RunPass_DirectionalModesSkipTheOtherWay(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	// One local-only item and one remote-only item.
	f.writeLocal(t, "local-page", "", "Local Page", "<p>a</p>")
	f.remote.EXPECT().List(gomock.Any()).
		Return([]models.RemotePageState{{RemoteID: "p9", Title: "Remote Page", Version: 1, Hash: remoteHash("Remote Page", "<p>b</p>")}}, nil)

	// Pull mode touches nothing local-only.
	f.remote.EXPECT().Get(gomock.Any(), "p9").
		Return(models.RemotePage{RemoteID: "p9", Title: "Remote Page", Body: "<p>b</p>", Version: 1}, nil)
	f.remote.EXPECT().ListAttachments(gomock.Any(), "p9").Return(nil, nil)

	report, err := f.syncer.RunPass(context.Background(), DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSkipped, resultFor(t, report, "local-page").Action)
	assert.Equal(t, models.ActionPulled, resultFor(t, report, "remote-page").Action)
}

func TestSyncer_RunPass_ApplyPoolHonoursWorkerLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	// Many independent items pushed by a worker pool; the mocked Create
	// tracks in-flight calls to check the pool honours its limit.
	var inflight, peak atomic.Int32
	f.remote.EXPECT().List(gomock.Any()).Return(nil, nil)
	for _, name := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"} {
		f.writeLocal(t, store.SanitizeTitle(name), "", name, "<p>"+name+"</p>")
		name := name
		f.remote.EXPECT().Create(gomock.Any(), name, gomock.Any()).
			DoAndReturn(func(context.Context, string, string) (models.RemotePageState, error) {
				if n := inflight.Add(1); n > peak.Load() {
					peak.Store(n)
				}
				defer inflight.Add(-1)
				time.Sleep(5 * time.Millisecond)
				return models.RemotePageState{RemoteID: "r-" + name, Version: 1}, nil
			})
	}

	report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
	require.NoError(t, err)
	assert.Len(t, report.Results, 6)
	assert.Empty(t, report.Failed())
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestSyncer_RunPass_OverlappingPassesSerialiseSameItem(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	f.writeLocal(t, "guide", "", "Guide", "<p>racy</p>")

	// Both passes must finish scanning before either applies, so both see
	// the same unsynced item and race to publish it.
	var scans sync.WaitGroup
	scans.Add(2)
	f.remote.EXPECT().List(gomock.Any()).
		DoAndReturn(func(context.Context) ([]models.RemotePageState, error) {
			scans.Done()
			scans.Wait()
			return nil, nil
		}).Times(2)

	// Create is slowed down so an unserialised second apply would be caught
	// in flight.
	var inflight, peak atomic.Int32
	f.remote.EXPECT().Create(gomock.Any(), "Guide", gomock.Any()).
		DoAndReturn(func(context.Context, string, string) (models.RemotePageState, error) {
			if n := inflight.Add(1); n > peak.Load() {
				peak.Store(n)
			}
			defer inflight.Add(-1)
			time.Sleep(20 * time.Millisecond)
			return models.RemotePageState{RemoteID: "p1", Version: 1}, nil
		}).Times(2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.syncer.RunPass(context.Background(), DirectionBoth)
			assert.NoError(t, err)
			assert.Empty(t, report.Failed())
		}()
	}
	wg.Wait()

	// замок на элемент держит ровно один проход
	assert.EqualValues(t, 1, peak.Load())
}

func TestSyncer_RunPass_CancelAbandonsPendingItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newSyncFixture(t, ctrl)

	// A single worker forces sequential apply: the first item cancels the
	// pass mid-flight and the second must never reach the remote.
	s := NewSyncer(f.content, f.state, f.remote, NewChangeDetector(), NewConflictResolver(), logger.Nop(), 1, 2).(*syncer)

	f.writeLocal(t, "alpha", "", "Alpha", "<p>a</p>")
	f.writeLocal(t, "bravo", "", "Bravo", "<p>b</p>")

	ctx, cancel := context.WithCancel(context.Background())
	f.remote.EXPECT().List(gomock.Any()).Return(nil, nil)
	f.remote.EXPECT().Create(gomock.Any(), "Alpha", gomock.Any()).
		DoAndReturn(func(context.Context, string, string) (models.RemotePageState, error) {
			cancel()
			return models.RemotePageState{RemoteID: "p1", Version: 1}, nil
		})

	report, err := s.RunPass(ctx, DirectionBoth)
	require.NoError(t, err)
	assert.Empty(t, report.Failed())

	// the in-flight item ran to completion, the pending one was left for
	// the next pass
	assert.Equal(t, models.ActionPushed, resultFor(t, report, "alpha").Action)
	assert.Equal(t, models.ActionSkipped, resultFor(t, report, "bravo").Action)
	require.NoError(t, resultFor(t, report, "bravo").Err)

	_, err = f.state.Get("bravo")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}
