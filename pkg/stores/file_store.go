package stores

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/configdesk/configdesk/pkg/debounce"
)

// DefaultFilePath is where the file store keeps the document by default.
const DefaultFilePath = ".data/config.yaml"

// FileStore implements Store as a single YAML file.
type FileStore struct {
	path        string
	defaultText string
	logger      zerolog.Logger
	watchDelay  time.Duration

	mu       sync.Mutex
	lastSum  string
	watching bool
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithDefaultText sets the content written when the file does not exist.
func WithDefaultText(text string) FileOption {
	return func(s *FileStore) {
		s.defaultText = text
	}
}

// WithFileLogger sets the logger used by Watch.
func WithFileLogger(logger zerolog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// WithWatchDelay sets how long Watch waits for a burst of file events to
// settle before reporting a change.
func WithWatchDelay(d time.Duration) FileOption {
	return func(s *FileStore) {
		s.watchDelay = d
	}
}

// NewFileStore returns a FileStore for path. An empty path uses DefaultFilePath.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	s := &FileStore{
		path:       path,
		logger:     zerolog.Nop(),
		watchDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultText == "" {
		s.defaultText = DefaultText()
	}
	return s
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Name returns "file".
func (s *FileStore) Name() string {
	return "file"
}

// Close is a no-op; Watch stops with its context.
func (s *FileStore) Close() error {
	return nil
}

// Load reads the file, writing the default document first if it is missing.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		snap := &Snapshot{Text: s.defaultText}
		if err := s.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}

	text := string(data)
	sum := Checksum(text)
	s.mu.Lock()
	s.lastSum = sum
	s.mu.Unlock()

	return &Snapshot{
		ID:        sum[:12],
		Text:      text,
		Checksum:  sum,
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// Save replaces the file atomically: the text is written to a temporary
// file in the same directory and renamed over the target.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Checksum == "" {
		snap.Checksum = Checksum(snap.Text)
	}
	if snap.ID == "" {
		snap.ID = snap.Checksum[:12]
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(snap.Text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	s.lastSum = snap.Checksum
	return nil
}

// Watch calls fn with the new content whenever the file is modified by
// something other than this store. Bursts of events are coalesced. Watch
// blocks until ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context, fn func(*Snapshot)) error {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return fmt.Errorf("already watching %s", s.path)
	}
	s.watching = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic replacement swaps the file's inode.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	reload := debounce.New(s.watchDelay, nil)
	defer reload.Close()

	s.logger.Info().Str("path", s.path).Msg("watching config file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("config file event")

			reload.Trigger(func() { s.reloadExternal(ctx, fn) })

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// reloadExternal reads the file and reports it unless it is content this
// store wrote itself.
func (s *FileStore) reloadExternal(ctx context.Context, fn func(*Snapshot)) {
	if ctx.Err() != nil {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to reload config file")
		}
		return
	}

	text := string(data)
	sum := Checksum(text)

	s.mu.Lock()
	own := sum == s.lastSum
	s.lastSum = sum
	s.mu.Unlock()
	if own {
		return
	}

	s.logger.Info().Str("path", s.path).Msg("config file changed externally")
	fn(&Snapshot{ID: sum[:12], Text: text, Checksum: sum, CreatedAt: time.Now().UTC()})
}
