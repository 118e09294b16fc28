/*
Package file provides a JSON-document CollectionStore.

PURPOSE:
  Persists the canonical collection as one indented JSON file, the format
  the feeder reads. Every save first copies the current file aside as
  <path>.backup.YYYYMMDD_HHMMSS so a bad merge can be rolled back by hand.

WRITE SEQUENCE:
  1. copy existing file to its timestamped backup (skipped if none exists)
  2. write the new document to <path>.tmp
  3. rename <path>.tmp over <path>

  A crash between 2 and 3 leaves the previous document intact.

SEE ALSO:
  - store/sqlite: Database-backed store with run history
  - factory.ScenarioFactory.ParseCollection: migrating decoder for old files
*/
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/warp/scenario-engine/scenario"
)

// BackupTimeFormat is the timestamp layout appended to backup file names.
const BackupTimeFormat = "20060102_150405"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoder turns file contents into a canonical collection.
type Decoder func(data []byte) (scenario.Collection, error)

// Store is a CollectionStore backed by a single JSON file.
type Store struct {
	path   string
	decode Decoder
	now    func() time.Time
	logger *zap.Logger
}

var _ scenario.CollectionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDecoder sets the decoder used by Load. The default reads canonical
// JSON only.
func WithDecoder(d Decoder) Option {
	return func(s *Store) { s.decode = d }
}

// WithClock sets the clock used to name backups.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a file store for path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		decode: decodeCanonical,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document path.
func (s *Store) Path() string { return s.path }

// Load reads the collection. A leading byte order mark is ignored.
func (s *Store) Load(_ context.Context) (scenario.Collection, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return scenario.Collection{}, scenario.ErrCollectionNotFound
	}
	if err != nil {
		return scenario.Collection{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	c, err := s.decode(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return scenario.Collection{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return c, nil
}

// Save backs up the current document and writes c in its place.
func (s *Store) Save(_ context.Context, c scenario.Collection) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}

	if backup, err := s.Backup(); err != nil {
		return err
	} else if backup != "" {
		s.logger.Info("collection backed up", zap.String("path", s.path), zap.String("backup", backup))
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	s.logger.Info("collection saved", zap.String("path", s.path), zap.Int("scenarios", len(c.Scenarios)))
	return nil
}

// Backup copies the current document to a timestamped backup and returns
// the backup path. It returns "" when there is nothing to back up.
func (s *Store) Backup() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.path, err)
	}
	backup := BackupPath(s.path, s.now())
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup %s: %w", backup, err)
	}
	return backup, nil
}

// Backups lists existing backups of the document, oldest first.
func (s *Store) Backups() ([]string, error) {
	matches, err := filepath.Glob(s.path + ".backup.*")
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

// BackupPath returns the backup name for path at t.
func BackupPath(path string, t time.Time) string {
	return path + ".backup." + t.Format(BackupTimeFormat)
}

// Encode writes c the way the feeder expects: two-space indent, non-ASCII
// and HTML characters unescaped, trailing newline.
func Encode(c scenario.Collection) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCanonical(data []byte) (scenario.Collection, error) {
	var c scenario.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return scenario.Collection{}, fmt.Errorf("%w: %v", scenario.ErrInvalidCollection, err)
	}
	return c, nil
}
