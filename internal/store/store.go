// Package store persists trained bundles under models_dir/<id>/bundle.json.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/healthrisk-cli/internal/model"
	"github.com/KaramelBytes/healthrisk-cli/internal/utils"
)

const bundleFileName = "bundle.json"

// ErrNotFound is returned when no saved bundle matches an id.
var ErrNotFound = errors.New("model not found")

// Summary is the listing view of a saved bundle.
type Summary struct {
	ID          string        `json:"id"`
	DatasetName string        `json:"dataset_name"`
	DatasetHash string        `json:"dataset_hash"`
	Rows        int           `json:"rows"`
	Dropped     int           `json:"dropped"`
	Metrics     model.Metrics `json:"metrics"`
	CreatedAt   string        `json:"created_at"`
}

// Store reads and writes bundles in one directory.
type Store struct {
	dir string
	log *zap.Logger
}

// New returns a store rooted at dir. The directory is created on first save.
func New(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the bundle atomically and returns the file path.
func (s *Store) Save(b *model.Bundle) (string, error) {
	if b == nil || b.ID == "" {
		return "", errors.New("bundle id not set")
	}
	if err := validID(b.ID); err != nil {
		return "", err
	}
	dir := filepath.Join(s.dir, b.ID)
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure dir: %w", err)
	}
	data, err := utils.PrettyJSON(b)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, bundleFileName)
	if err := utils.SafeWriteFile(path, data); err != nil {
		return "", err
	}
	s.log.Info("bundle saved", zap.String("id", b.ID), zap.String("path", path))
	return path, nil
}

// Load reads one bundle. A unique id prefix is accepted.
func (s *Store) Load(id string) (*model.Bundle, error) {
	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, full, bundleFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b model.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", full, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", full, err)
	}
	return &b, nil
}

// List returns summaries of every readable bundle, oldest first.
// Unreadable entries are logged and skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var bundles []*model.Bundle
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := s.Load(e.Name())
		if err != nil {
			s.log.Warn("skipping unreadable bundle", zap.String("id", e.Name()), zap.Error(err))
			continue
		}
		bundles = append(bundles, b)
	}
	sort.SliceStable(bundles, func(i, j int) bool {
		if bundles[i].CreatedAt.Equal(bundles[j].CreatedAt) {
			return bundles[i].ID < bundles[j].ID
		}
		return bundles[i].CreatedAt.Before(bundles[j].CreatedAt)
	})
	out := make([]Summary, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, Summary{
			ID:          b.ID,
			DatasetName: b.DatasetName,
			DatasetHash: b.DatasetHash,
			Rows:        b.Rows,
			Dropped:     b.Dropped,
			Metrics:     b.Metrics,
			CreatedAt:   b.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return out, nil
}

// Latest returns the most recently created bundle.
func (s *Store) Latest() (*model.Bundle, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no saved models in %s", ErrNotFound, s.dir)
	}
	return s.Load(list[len(list)-1].ID)
}

// Delete removes a bundle directory.
func (s *Store) Delete(id string) error {
	full, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, full)); err != nil {
		return fmt.Errorf("remove bundle: %w", err)
	}
	s.log.Info("bundle deleted", zap.String("id", full))
	return nil
}

// resolve maps an id or unique id prefix to a directory name.
func (s *Store) resolve(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.dir, id, bundleFileName)); err == nil {
		return id, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("read models dir: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), id) {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous model id %q matches %d models", id, len(matches))
	}
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid model id %q", id)
	}
	return nil
}
