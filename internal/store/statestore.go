package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MKhiriev/go-confluence-sync/models"
)

const stateFileName = "sync_state.json"

// Attachments that failed this many times within the failure window are
// skipped until the window expires.
const (
	attachmentFailureLimit  = 3
	attachmentFailureWindow = 24 * time.Hour
)

// stateDocument is the on-disk representation of the state store: a single
// JSON document replaced atomically on every mutation.
type stateDocument struct {
	Records           map[string]models.SyncRecord `json:"records"`
	RemoteIDs         map[string]string            `json:"remote_ids"`
	Conflicts         map[string]string            `json:"conflicts,omitempty"`
	DeletedPages      []string                     `json:"deleted_pages,omitempty"`
	FailedAttachments map[string][]time.Time       `json:"failed_attachments,omitempty"`
}

type fileStateStore struct {
	path string

	mu          sync.RWMutex
	records     map[string]models.SyncRecord
	remoteIDs   map[string]string // localID → remoteID, must agree with records
	conflicts   map[string]string // localID → reason
	deleted     map[string]struct{}
	attachFails map[string][]time.Time
}

// NewStateStore opens (or initialises) the state document under cacheDir.
// A missing document starts the store empty; an unreadable, undecodable or
// internally inconsistent document returns ErrStateCorruption.
func NewStateStore(cacheDir string) (StateStore, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	s := &fileStateStore{
		path:        filepath.Join(cacheDir, stateFileName),
		records:     make(map[string]models.SyncRecord),
		remoteIDs:   make(map[string]string),
		conflicts:   make(map[string]string),
		deleted:     make(map[string]struct{}),
		attachFails: make(map[string][]time.Time),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStateStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrStateCorruption, s.path, err)
	}

	var doc stateDocument
	if err = json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrStateCorruption, s.path, err)
	}

	if doc.Records == nil {
		doc.Records = make(map[string]models.SyncRecord)
	}
	if doc.RemoteIDs == nil {
		doc.RemoteIDs = make(map[string]string)
	}

	// The companion map must agree with the records in both directions.
	for localID, rec := range doc.Records {
		if rec.RemoteID == "" {
			continue
		}
		if doc.RemoteIDs[localID] != rec.RemoteID {
			return fmt.Errorf("%w: remote-id map disagrees with record %q", ErrStateCorruption, localID)
		}
	}
	for localID, remoteID := range doc.RemoteIDs {
		rec, ok := doc.Records[localID]
		if !ok || rec.RemoteID != remoteID {
			return fmt.Errorf("%w: dangling remote-id map entry %q", ErrStateCorruption, localID)
		}
	}

	s.records = doc.Records
	s.remoteIDs = doc.RemoteIDs
	s.conflicts = doc.Conflicts
	if s.conflicts == nil {
		s.conflicts = make(map[string]string)
	}
	s.deleted = make(map[string]struct{}, len(doc.DeletedPages))
	for _, id := range doc.DeletedPages {
		s.deleted[id] = struct{}{}
	}
	s.attachFails = doc.FailedAttachments
	if s.attachFails == nil {
		s.attachFails = make(map[string][]time.Time)
	}

	return nil
}

// persist writes the whole document to a temporary file in the same
// directory and renames it over the target. Callers must hold the write lock.
func (s *fileStateStore) persist() error {
	doc := stateDocument{
		Records:           s.records,
		RemoteIDs:         s.remoteIDs,
		Conflicts:         s.conflicts,
		FailedAttachments: s.attachFails,
	}
	for id := range s.deleted {
		doc.DeletedPages = append(doc.DeletedPages, id)
	}
	sort.Strings(doc.DeletedPages)

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sync_state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

func (s *fileStateStore) Get(localID string) (models.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[localID]
	if !ok {
		return models.SyncRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, localID)
	}
	return rec, nil
}

func (s *fileStateStore) Put(record models.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.LocalID] = record
	if record.RemoteID != "" {
		s.remoteIDs[record.LocalID] = record.RemoteID
	} else {
		delete(s.remoteIDs, record.LocalID)
	}

	return s.persist()
}

func (s *fileStateStore) Delete(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, localID)
	delete(s.remoteIDs, localID)

	return s.persist()
}

func (s *fileStateStore) List() []models.SyncRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.SyncRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].LocalID < records[j].LocalID })

	return records
}

func (s *fileStateStore) MarkConflict(localID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conflicts[localID] = reason
	return s.persist()
}

func (s *fileStateStore) ClearConflict(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conflicts, localID)
	return s.persist()
}

func (s *fileStateStore) Conflicts() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.conflicts))
	for k, v := range s.conflicts {
		out[k] = v
	}
	return out
}

func (s *fileStateStore) MarkPageDeleted(remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted[remoteID] = struct{}{}
	return s.persist()
}

func (s *fileStateStore) ClearPageDeleted(remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.deleted, remoteID)
	return s.persist()
}

func (s *fileStateStore) IsPageDeleted(remoteID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.deleted[remoteID]
	return ok
}

func (s *fileStateStore) MarkAttachmentFailed(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := pruneFailures(s.attachFails[name], now)
	s.attachFails[name] = append(kept, now)

	return s.persist()
}

func (s *fileStateStore) ClearAttachmentFailed(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attachFails[name]; !ok {
		return nil
	}
	delete(s.attachFails, name)
	return s.persist()
}

func (s *fileStateStore) ShouldSkipAttachment(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(pruneFailures(s.attachFails[name], time.Now())) >= attachmentFailureLimit
}

// pruneFailures drops failure timestamps older than the backoff window.
func pruneFailures(failures []time.Time, now time.Time) []time.Time {
	kept := failures[:0:0]
	for _, ts := range failures {
		if now.Sub(ts) < attachmentFailureWindow {
			kept = append(kept, ts)
		}
	}
	return kept
}
