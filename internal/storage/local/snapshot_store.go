// Package local implements the filesystem snapshot and artifact store.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
)

const metaSuffix = ".meta.json"

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the run-scoped directory where snapshots are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes snapshots and artifacts to one directory.
type Store struct {
	baseDir string
	clock   crawler.Clock
}

// New creates a new local filesystem-backed store.
func New(cfg Config, clock crawler.Clock) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if clock == nil {
		clock = utcClock{}
	}
	return &Store{baseDir: abs, clock: clock}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.baseDir
}

// Put writes one snapshot plus its metadata sidecar. Writes go through a
// temporary file and rename, so readers never see a partial page.
func (s *Store) Put(_ context.Context, name string, sourceURL string, data []byte) (crawler.Snapshot, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return crawler.Snapshot{}, err
	}
	if err := writeAtomic(fullPath, data); err != nil {
		return crawler.Snapshot{}, err
	}
	snapshot := crawler.Snapshot{URL: sourceURL, Path: fullPath, FetchedAt: s.clock.Now()}
	meta, err := json.Marshal(snapshot)
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := writeAtomic(fullPath+metaSuffix, meta); err != nil {
		return crawler.Snapshot{}, err
	}
	return snapshot, nil
}

// List returns every stored snapshot sorted by path.
func (s *Store) List(_ context.Context) ([]crawler.Snapshot, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	snapshots := make([]crawler.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), crawler.SnapshotExt) {
			continue
		}
		fullPath := filepath.Join(s.baseDir, entry.Name())
		snapshot := crawler.Snapshot{Path: fullPath}
		if meta, err := os.ReadFile(fullPath + metaSuffix); err == nil {
			if err := json.Unmarshal(meta, &snapshot); err != nil {
				return nil, fmt.Errorf("decode snapshot meta %s: %w", entry.Name(), err)
			}
			snapshot.Path = fullPath
		} else if info, statErr := entry.Info(); statErr == nil {
			snapshot.FetchedAt = info.ModTime().UTC()
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Path < snapshots[j].Path })
	return snapshots, nil
}

// Read loads a snapshot body.
func (s *Store) Read(_ context.Context, snapshot crawler.Snapshot) ([]byte, error) {
	if err := s.within(snapshot.Path); err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the store directory above.
	data, err := os.ReadFile(snapshot.Path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Purge deletes every snapshot and sidecar. Other artifacts are kept.
func (s *Store) Purge(ctx context.Context) error {
	snapshots, err := s.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, snapshot := range snapshots {
		for _, p := range []string{snapshot.Path, snapshot.Path + metaSuffix} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("remove %s: %w", filepath.Base(p), err))
			}
		}
	}
	return errors.Join(errs...)
}

// PutObject writes an artifact (JSON list, CSV) and returns a file:// URI.
func (s *Store) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := writeAtomic(fullPath, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// GetObject reads an artifact written by PutObject.
func (s *Store) GetObject(_ context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the store directory by resolve.
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *Store) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, path))
	if err := s.within(fullPath); err != nil {
		return "", err
	}
	return fullPath, nil
}

func (s *Store) within(fullPath string) error {
	if !strings.HasPrefix(filepath.Clean(fullPath), s.baseDir+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected")
	}
	return nil
}

func writeAtomic(fullPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}
