// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MKhiriev/go-confluence-sync/internal/adapter"
	"github.com/MKhiriev/go-confluence-sync/internal/fingerprint"
	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/MKhiriev/go-confluence-sync/internal/store"
	"github.com/MKhiriev/go-confluence-sync/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// passItem carries one item through a pass: the merged observation, the sync
// record it is judged against, and the classification once assigned.
type passItem struct {
	item           models.Item
	record         models.SyncRecord
	hasRecord      bool
	classification models.ChangeClassification
	resolution     models.ConflictResolution
	resolved       bool
}

type syncer struct {
	content  store.ContentStore
	state    store.StateStore
	remote   adapter.RemoteStore
	detector ChangeDetector
	resolver ConflictResolver
	log      *logger.Logger

	workers         int
	conflictRetries int

	// locks serialises apply steps per local identifier. The map is owned by
	// the syncer, not the pass, so overlapping passes (ticker plus watcher)
	// never touch the same item concurrently.
	locks sync.Map
}

// NewSyncer wires the pass orchestrator. workers bounds apply-phase
// parallelism; conflictRetries bounds the re-fetch loop a push enters when
// the remote rejects its expected version.
func NewSyncer(
	content store.ContentStore,
	state store.StateStore,
	remote adapter.RemoteStore,
	detector ChangeDetector,
	resolver ConflictResolver,
	log *logger.Logger,
	workers, conflictRetries int,
) Syncer {
	if workers <= 0 {
		workers = 1
	}
	if conflictRetries < 0 {
		conflictRetries = 0
	}
	return &syncer{
		content:         content,
		state:           state,
		remote:          remote,
		detector:        detector,
		resolver:        resolver,
		log:             log,
		workers:         workers,
		conflictRetries: conflictRetries,
	}
}

// RunPass implements Syncer.
func (s *syncer) RunPass(ctx context.Context, dir Direction) (models.PassReport, error) {
	report := models.PassReport{
		PassID:  uuid.NewString(),
		State:   models.Scanning,
		Started: time.Now(),
	}
	passLog := &logger.Logger{Logger: s.log.With().Str("pass_id", report.PassID).Stringer("mode", dir).Logger()}
	passLog.Info().Msg("sync pass started")

	items, err := s.scan(ctx)
	if err != nil {
		report.State = models.Aborted
		report.Finished = time.Now()
		passLog.Error().Err(err).Msg("sync pass aborted during scan")
		return report, fmt.Errorf("%w: %v", ErrPassAborted, err)
	}

	report.State = models.Classifying
	held := s.state.Conflicts()
	for i := range items {
		items[i].classification = s.detector.Classify(items[i].item, items[i].record, items[i].hasRecord)
	}

	report.State = models.Resolving
	for i := range items {
		if items[i].classification != models.BothChanged || !items[i].hasRecord {
			continue
		}
		items[i].resolution = s.resolver.Resolve(items[i].item, items[i].record)
		items[i].resolved = true
	}

	report.State = models.Applying
	report.Results = make([]models.ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range items {
		i := i
		g.Go(func() error {
			report.Results[i] = s.applyItem(gctx, passLog, dir, items[i], held)
			return nil
		})
	}
	_ = g.Wait()

	report.State = models.Committed
	report.Finished = time.Now()
	passLog.Info().
		Int("items", len(report.Results)).
		Int("failed", len(report.Failed())).
		Dur("took", report.Finished.Sub(report.Started)).
		Msg("sync pass committed")

	return report, nil
}

// Acknowledge implements Syncer.
func (s *syncer) Acknowledge(localID string) error {
	if _, ok := s.state.Conflicts()[localID]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchConflict, localID)
	}
	if err := s.state.ClearConflict(localID); err != nil {
		return fmt.Errorf("clear conflict flag for %s: %w", localID, err)
	}
	s.log.Info().Str("local_id", localID).Msg("conflict acknowledged")
	return nil
}

// HeldConflicts implements Syncer.
func (s *syncer) HeldConflicts() map[string]string {
	return s.state.Conflicts()
}

// ── scanning ─────────────────────────────────────────────────────────────────

// scan merges three views of the world into one item per local identifier:
// the persisted sync records, the local content files, and the remote page
// listing. Any failure here aborts the pass; partial knowledge of either side
// must never drive deletes or overwrites.
func (s *syncer) scan(ctx context.Context) ([]passItem, error) {
	byLocal := make(map[string]*passItem)
	byRemote := make(map[string]*passItem)

	for _, rec := range s.state.List() {
		pi := &passItem{
			item:      models.Item{LocalID: rec.LocalID, RemoteID: rec.RemoteID},
			record:    rec,
			hasRecord: true,
		}
		byLocal[rec.LocalID] = pi
		if rec.RemoteID != "" {
			byRemote[rec.RemoteID] = pi
		}
	}

	files, err := s.content.List()
	if err != nil {
		return nil, fmt.Errorf("list local content: %w", err)
	}
	for _, file := range files {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		raw, modTime, err := s.content.Read(file.LocalID)
		if err != nil {
			return nil, fmt.Errorf("read local content %s: %w", file.LocalID, err)
		}
		doc, err := models.UnmarshalPageDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("parse local content %s: %w", file.LocalID, err)
		}

		pi, ok := byLocal[file.LocalID]
		if !ok {
			pi = &passItem{item: models.Item{LocalID: file.LocalID}}
			byLocal[file.LocalID] = pi
		}
		pi.item.LocalExists = true
		pi.item.Title = doc.Title
		pi.item.Body = doc.Body
		pi.item.Hash = fingerprint.Sum(doc.CanonicalContent())
		pi.item.LocalModTime = modTime

		// A file may carry a remote binding the record does not know yet,
		// e.g. content restored from a backup.
		if pi.item.RemoteID == "" && doc.RemoteID != "" {
			pi.item.RemoteID = doc.RemoteID
			byRemote[doc.RemoteID] = pi
		}
	}

	remoteStates, err := s.remote.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote pages: %w", err)
	}
	for _, st := range remoteStates {
		pi, ok := byRemote[st.RemoteID]
		if !ok {
			if s.state.IsPageDeleted(st.RemoteID) {
				// Deleted locally in an earlier pass; do not resurrect.
				continue
			}
			pi = s.adoptRemote(byLocal, st)
			byRemote[st.RemoteID] = pi
		}
		pi.item.RemoteExists = true
		pi.item.RemoteVersion = st.Version
		pi.item.RemoteHash = st.Hash
		if pi.item.Title == "" {
			pi.item.Title = st.Title
		}
	}

	ids := make([]string, 0, len(byLocal))
	for id := range byLocal {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]passItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, *byLocal[id])
	}
	return items, nil
}

// adoptRemote finds or creates the local-side slot for a remote page no
// record points at. A local file whose sanitized title matches and which has
// no remote binding of its own is treated as the same logical document; a
// bound file with the same title is a distinct document, so the newcomer gets
// a disambiguated identifier.
func (s *syncer) adoptRemote(byLocal map[string]*passItem, st models.RemotePageState) *passItem {
	localID := store.SanitizeTitle(st.Title)

	if existing, clash := byLocal[localID]; clash {
		if existing.item.RemoteID == "" {
			existing.item.RemoteID = st.RemoteID
			return existing
		}
		localID = localID + "-" + st.RemoteID
	}

	pi := &passItem{item: models.Item{LocalID: localID, RemoteID: st.RemoteID}}
	byLocal[localID] = pi
	return pi
}

// ── applying ─────────────────────────────────────────────────────────────────

func (s *syncer) applyItem(ctx context.Context, log *logger.Logger, dir Direction, pi passItem, held map[string]string) models.ItemResult {
	res := models.ItemResult{
		LocalID:        pi.item.LocalID,
		Classification: pi.classification,
		Action:         models.ActionNone,
	}

	// The pass was cancelled before this item started: leave it for the next
	// pass rather than touching either side with a dead context.
	if ctx.Err() != nil {
		res.Action = models.ActionSkipped
		return res
	}

	if reason, ok := held[pi.item.LocalID]; ok {
		log.Debug().Str("local_id", pi.item.LocalID).Str("reason", reason).Msg("item held, waiting for acknowledgement")
		res.Action = models.ActionHeld
		return res
	}

	unlock := s.lockItem(pi.item.LocalID)
	defer unlock()

	var (
		action models.ItemAction
		err    error
	)

	switch pi.classification {
	case models.Unchanged:
		action, err = s.applyUnchanged(pi)

	case models.LocalOnly:
		if dir == DirectionPull {
			action = models.ActionSkipped
			break
		}
		action, err = s.push(ctx, log, pi)

	case models.RemoteOnly:
		if dir == DirectionPush {
			action = models.ActionSkipped
			break
		}
		action, err = s.pull(ctx, log, pi.item)

	case models.LocallyDeleted:
		if dir == DirectionPull {
			action = models.ActionSkipped
			break
		}
		action, err = s.propagateLocalDelete(ctx, pi.item)

	case models.RemotelyDeleted:
		if dir == DirectionPush {
			action = models.ActionSkipped
			break
		}
		action, err = s.propagateRemoteDelete(pi.item)

	case models.BothChanged:
		if dir != DirectionBoth {
			action = models.ActionSkipped
			break
		}
		action, err = s.applyConflict(ctx, log, pi)
	}

	res.Action = action
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrSyncItemFailed, pi.item.LocalID, err)
		log.Error().Err(err).
			Str("local_id", pi.item.LocalID).
			Stringer("classification", pi.classification).
			Msg("apply failed")
	}
	return res
}

// applyUnchanged handles the only Unchanged case that needs work: both sides
// exist with identical content but no record binds them yet.
func (s *syncer) applyUnchanged(pi passItem) (models.ItemAction, error) {
	if pi.hasRecord || !pi.item.LocalExists || !pi.item.RemoteExists {
		return models.ActionNone, nil
	}
	if err := s.commitRecord(pi.item, pi.item.RemoteVersion, pi.item.Hash); err != nil {
		return models.ActionNone, err
	}
	return models.ActionAdopted, nil
}

func (s *syncer) applyConflict(ctx context.Context, log *logger.Logger, pi passItem) (models.ItemAction, error) {
	if !pi.resolved {
		// Never synced, both sides exist, content diverged: no record to
		// order the histories by.
		return s.hold(log, pi.item.LocalID, models.ReasonAmbiguousConflict)
	}

	log.Info().
		Str("local_id", pi.item.LocalID).
		Stringer("outcome", pi.resolution.Outcome).
		Str("reason", string(pi.resolution.Reason)).
		Msg("conflict resolved")

	switch pi.resolution.Outcome {
	case models.KeepLocal:
		return s.push(ctx, log, pi)
	case models.KeepRemote:
		return s.pull(ctx, log, pi.item)
	default:
		return s.hold(log, pi.item.LocalID, pi.resolution.Reason)
	}
}

func (s *syncer) hold(log *logger.Logger, localID string, reason models.ResolutionReason) (models.ItemAction, error) {
	if err := s.state.MarkConflict(localID, string(reason)); err != nil {
		return models.ActionNone, fmt.Errorf("flag conflict: %w", err)
	}
	log.Warn().Str("local_id", localID).Str("reason", string(reason)).Msg("item held for manual review")
	return models.ActionHeld, nil
}

// push publishes the local copy. Updates carry the remote version observed
// during scanning as an optimistic-concurrency precondition; a rejection
// triggers a bounded re-fetch and re-resolve before giving up.
func (s *syncer) push(ctx context.Context, log *logger.Logger, pi passItem) (models.ItemAction, error) {
	item := pi.item

	// The remote already holds this exact content: just (re)commit the
	// record. Makes recovering from a crash between apply and commit cheap.
	if item.RemoteExists && fingerprint.Equal(item.Hash, item.RemoteHash) {
		if err := s.commitRecord(item, item.RemoteVersion, item.Hash); err != nil {
			return models.ActionNone, err
		}
		return models.ActionNone, nil
	}

	if !item.RemoteExists || item.RemoteID == "" {
		return s.create(ctx, log, item)
	}

	expected := item.RemoteVersion
	for attempt := 0; ; attempt++ {
		version, err := s.remote.Update(ctx, item.RemoteID, item.Title, item.Body, expected)
		if err == nil {
			if err = s.commitRecord(item, version, item.Hash); err != nil {
				return models.ActionNone, err
			}
			s.pushAttachments(ctx, log, item.LocalID, item.RemoteID)
			return models.ActionPushed, nil
		}

		if errors.Is(err, adapter.ErrNotFound) {
			// The page vanished between scan and push; the local edit
			// survives as a fresh page.
			return s.create(ctx, log, item)
		}
		if !errors.Is(err, adapter.ErrVersionConflict) {
			return models.ActionNone, fmt.Errorf("update remote page %s: %w", item.RemoteID, err)
		}
		if attempt >= s.conflictRetries {
			return s.hold(log, item.LocalID, models.ReasonAmbiguousConflict)
		}

		// Another writer advanced the page. Re-fetch its state and ask the
		// resolver again before retrying.
		page, getErr := s.remote.Get(ctx, item.RemoteID)
		if errors.Is(getErr, adapter.ErrNotFound) {
			return s.create(ctx, log, item)
		}
		if getErr != nil {
			return models.ActionNone, fmt.Errorf("refetch remote page %s: %w", item.RemoteID, getErr)
		}

		remoteDoc := models.PageDocument{Title: page.Title, Body: page.Body}
		item.RemoteVersion = page.Version
		item.RemoteHash = fingerprint.Sum(remoteDoc.CanonicalContent())
		item.RemoteExists = true

		// The competing writer published exactly our content: nothing left
		// to push, just commit the binding at the new version.
		if fingerprint.Equal(item.Hash, item.RemoteHash) {
			if err = s.commitRecord(item, page.Version, item.Hash); err != nil {
				return models.ActionNone, err
			}
			return models.ActionPushed, nil
		}

		resolution := s.resolver.Resolve(item, pi.record)
		log.Info().
			Str("local_id", item.LocalID).
			Int64("remote_version", page.Version).
			Stringer("outcome", resolution.Outcome).
			Msg("re-resolved after version conflict")

		switch resolution.Outcome {
		case models.KeepLocal:
			expected = page.Version
		case models.KeepRemote:
			return s.pull(ctx, log, item)
		default:
			return s.hold(log, item.LocalID, resolution.Reason)
		}
	}
}

// create publishes a brand-new page and rebinds the local file to it.
func (s *syncer) create(ctx context.Context, log *logger.Logger, item models.Item) (models.ItemAction, error) {
	state, err := s.remote.Create(ctx, item.Title, item.Body)
	if err != nil {
		return models.ActionNone, fmt.Errorf("create remote page: %w", err)
	}
	item.RemoteID = state.RemoteID

	if err = s.writeLocalDoc(item); err != nil {
		return models.ActionNone, err
	}
	if err = s.commitRecord(item, state.Version, item.Hash); err != nil {
		return models.ActionNone, err
	}

	log.Info().Str("local_id", item.LocalID).Str("remote_id", state.RemoteID).Msg("remote page created")
	s.pushAttachments(ctx, log, item.LocalID, item.RemoteID)
	return models.ActionPushed, nil
}

// pull replaces the local copy with the remote page's current content.
func (s *syncer) pull(ctx context.Context, log *logger.Logger, item models.Item) (models.ItemAction, error) {
	page, err := s.remote.Get(ctx, item.RemoteID)
	if err != nil {
		return models.ActionNone, fmt.Errorf("fetch remote page %s: %w", item.RemoteID, err)
	}

	doc := models.PageDocument{RemoteID: page.RemoteID, Title: page.Title, Body: page.Body}
	hash := fingerprint.Sum(doc.CanonicalContent())

	// The local copy already holds this exact content: just (re)commit the
	// record, mirroring the no-op push path.
	if item.LocalExists && fingerprint.Equal(item.Hash, hash) {
		if err = s.commitRecord(item, page.Version, hash); err != nil {
			return models.ActionNone, err
		}
		return models.ActionNone, nil
	}

	payload, err := doc.Marshal()
	if err != nil {
		return models.ActionNone, err
	}
	if err = s.content.Write(item.LocalID, payload); err != nil {
		return models.ActionNone, fmt.Errorf("write local content %s: %w", item.LocalID, err)
	}

	if err = s.commitRecord(item, page.Version, hash); err != nil {
		return models.ActionNone, err
	}

	s.pullAttachments(ctx, log, item.LocalID, item.RemoteID)
	return models.ActionPulled, nil
}

// propagateLocalDelete removes the remote page after its local file was
// deleted, and remembers the remote identifier so a lagging listing cannot
// resurrect the page.
func (s *syncer) propagateLocalDelete(ctx context.Context, item models.Item) (models.ItemAction, error) {
	if err := s.remote.Delete(ctx, item.RemoteID); err != nil {
		return models.ActionNone, fmt.Errorf("delete remote page %s: %w", item.RemoteID, err)
	}
	if err := s.state.MarkPageDeleted(item.RemoteID); err != nil {
		return models.ActionNone, fmt.Errorf("mark page deleted: %w", err)
	}
	if err := s.state.Delete(item.LocalID); err != nil {
		return models.ActionNone, fmt.Errorf("delete sync record %s: %w", item.LocalID, err)
	}
	return models.ActionDeletedRemote, nil
}

// propagateRemoteDelete removes the local file after its remote page was
// deleted.
func (s *syncer) propagateRemoteDelete(item models.Item) (models.ItemAction, error) {
	if err := s.content.Remove(item.LocalID); err != nil {
		return models.ActionNone, fmt.Errorf("remove local content %s: %w", item.LocalID, err)
	}
	if err := s.state.Delete(item.LocalID); err != nil {
		return models.ActionNone, fmt.Errorf("delete sync record %s: %w", item.LocalID, err)
	}
	return models.ActionDeletedLocal, nil
}

// ── attachments ──────────────────────────────────────────────────────────────

// pushAttachments uploads local attachment files the remote page does not
// have yet. Attachment transfer is best-effort: failures are recorded for
// backoff and never fail the page itself.
func (s *syncer) pushAttachments(ctx context.Context, log *logger.Logger, localID, remoteID string) {
	names, err := s.content.ListAttachments(localID)
	if err != nil {
		log.Warn().Err(err).Str("local_id", localID).Msg("list local attachments failed")
		return
	}
	if len(names) == 0 {
		return
	}

	remoteAttachments, err := s.remote.ListAttachments(ctx, remoteID)
	if err != nil {
		log.Warn().Err(err).Str("remote_id", remoteID).Msg("list remote attachments failed")
		return
	}
	present := make(map[string]bool, len(remoteAttachments))
	for _, att := range remoteAttachments {
		present[att.Title] = true
	}

	for _, name := range names {
		if present[name] {
			continue
		}
		key := localID + "/" + name
		if s.state.ShouldSkipAttachment(key) {
			log.Debug().Str("attachment", key).Msg("attachment in failure backoff, skipping")
			continue
		}

		content, err := s.content.ReadAttachment(localID, name)
		if err == nil {
			err = s.remote.UploadAttachment(ctx, remoteID, name, content)
		}
		if err != nil {
			log.Warn().Err(err).Str("attachment", key).Msg("attachment upload failed")
			_ = s.state.MarkAttachmentFailed(key)
			continue
		}
		_ = s.state.ClearAttachmentFailed(key)
		log.Info().Str("attachment", key).Msg("attachment uploaded")
	}
}

// pullAttachments downloads the remote page's attachments into the local
// attachments directory. Best-effort, with the same backoff as uploads.
func (s *syncer) pullAttachments(ctx context.Context, log *logger.Logger, localID, remoteID string) {
	attachments, err := s.remote.ListAttachments(ctx, remoteID)
	if err != nil {
		log.Warn().Err(err).Str("remote_id", remoteID).Msg("list remote attachments failed")
		return
	}

	for _, att := range attachments {
		key := localID + "/" + att.Title
		if s.state.ShouldSkipAttachment(key) {
			log.Debug().Str("attachment", key).Msg("attachment in failure backoff, skipping")
			continue
		}

		content, err := s.remote.DownloadAttachment(ctx, att)
		if err == nil {
			err = s.content.WriteAttachment(localID, att.Title, content)
		}
		if err != nil {
			log.Warn().Err(err).Str("attachment", key).Msg("attachment download failed")
			_ = s.state.MarkAttachmentFailed(key)
			continue
		}
		_ = s.state.ClearAttachmentFailed(key)
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *syncer) commitRecord(item models.Item, version int64, hash string) error {
	record := models.SyncRecord{
		LocalID:           item.LocalID,
		RemoteID:          item.RemoteID,
		LastSyncedHash:    hash,
		LastSyncedVersion: version,
		LastSyncedAt:      time.Now().UTC(),
	}
	if err := s.state.Put(record); err != nil {
		return fmt.Errorf("commit sync record %s: %w", item.LocalID, err)
	}

	// A freshly committed binding supersedes any deletion tombstone for the
	// same page (e.g. a file deleted in one pass and restored in a later one).
	if item.RemoteID != "" && s.state.IsPageDeleted(item.RemoteID) {
		if err := s.state.ClearPageDeleted(item.RemoteID); err != nil {
			return fmt.Errorf("clear deletion tombstone %s: %w", item.RemoteID, err)
		}
	}
	return nil
}

// writeLocalDoc rewrites the local file so it carries the current remote
// binding. The remote identifier is excluded from fingerprinting, so this
// never changes the item's hash.
func (s *syncer) writeLocalDoc(item models.Item) error {
	doc := models.PageDocument{RemoteID: item.RemoteID, Title: item.Title, Body: item.Body}
	payload, err := doc.Marshal()
	if err != nil {
		return err
	}
	if err = s.content.Write(item.LocalID, payload); err != nil {
		return fmt.Errorf("write local content %s: %w", item.LocalID, err)
	}
	return nil
}

func (s *syncer) lockItem(localID string) func() {
	v, _ := s.locks.LoadOrStore(localID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
