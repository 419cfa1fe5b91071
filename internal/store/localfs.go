package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MKhiriev/go-confluence-sync/models"
)

const contentExt = ".json"

type fileContentStore struct {
	contentDir     string
	attachmentsDir string
}

// NewContentStore returns a ContentStore rooted at the given directories,
// creating them if necessary.
func NewContentStore(contentDir, attachmentsDir string) (ContentStore, error) {
	for _, dir := range []string{contentDir, attachmentsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create content dir %s: %w", dir, err)
		}
	}

	return &fileContentStore{contentDir: contentDir, attachmentsDir: attachmentsDir}, nil
}

func (s *fileContentStore) List() ([]models.LocalFile, error) {
	entries, err := os.ReadDir(s.contentDir)
	if err != nil {
		return nil, fmt.Errorf("list content dir: %w", err)
	}

	var files []models.LocalFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), contentExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, models.LocalFile{
			LocalID: strings.TrimSuffix(entry.Name(), contentExt),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].LocalID < files[j].LocalID })

	return files, nil
}

func (s *fileContentStore) Read(localID string) ([]byte, time.Time, error) {
	path := s.pagePath(localID)

	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat page %s: %w", localID, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read page %s: %w", localID, err)
	}

	return data, info.ModTime(), nil
}

func (s *fileContentStore) Write(localID string, content []byte) error {
	err := atomicWrite(s.pagePath(localID), content)
	if err == nil {
		return nil
	}

	// One retry after making sure the directory tree exists.
	if mkErr := os.MkdirAll(s.contentDir, 0o755); mkErr != nil {
		return fmt.Errorf("write page %s: %w", localID, err)
	}
	if err = atomicWrite(s.pagePath(localID), content); err != nil {
		return fmt.Errorf("write page %s: %w", localID, err)
	}

	return nil
}

func (s *fileContentStore) Remove(localID string) error {
	err := os.Remove(s.pagePath(localID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove page %s: %w", localID, err)
	}
	return nil
}

func (s *fileContentStore) Exists(localID string) bool {
	_, err := os.Stat(s.pagePath(localID))
	return err == nil
}

func (s *fileContentStore) ListAttachments(localID string) ([]string, error) {
	dir := filepath.Join(s.attachmentsDir, localID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list attachments for %s: %w", localID, err)
	}

	var names []string
	for _, entry := range entries {
		// Dot entries cover the .metadata directory and temp files left by
		// an interrupted atomic write.
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}

func (s *fileContentStore) ReadAttachment(localID string, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.attachmentsDir, localID, name))
	if err != nil {
		return nil, fmt.Errorf("read attachment %s/%s: %w", localID, name, err)
	}
	return data, nil
}

func (s *fileContentStore) WriteAttachment(localID string, name string, content []byte) error {
	dir := filepath.Join(s.attachmentsDir, localID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create attachment dir for %s: %w", localID, err)
	}

	if err := atomicWrite(filepath.Join(dir, name), content); err != nil {
		return fmt.Errorf("write attachment %s/%s: %w", localID, name, err)
	}
	return nil
}

func (s *fileContentStore) pagePath(localID string) string {
	return filepath.Join(s.contentDir, localID+contentExt)
}

// atomicWrite commits content via a temporary file and rename so readers
// never observe a partially written file.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// SanitizeTitle converts a page title into a filesystem-safe local
// identifier: lowercase, non-alphanumerics collapsed to single dashes,
// capped at 100 characters.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}

	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '-' })
	safe := strings.Join(parts, "-")
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}
