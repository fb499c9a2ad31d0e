// Package evidence writes screenshots for a run. The local directory is
// authoritative; an optional S3 mirror receives a copy of every file.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/obs"
)

// Mirror receives a copy of every written file.
type Mirror interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	Location(key string) string
}

// Artifact is one written evidence file.
type Artifact struct {
	Scenario string `json:"scenario"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	// Mirrored is the mirror location, empty when no mirror is configured or
	// the upload failed.
	Mirrored string `json:"mirrored,omitempty"`
}

// Store writes evidence under Dir.
type Store struct {
	dir    string
	runID  string
	mirror Mirror

	mu        sync.Mutex
	artifacts []Artifact
	owners    map[string]string // local path -> scenario that wrote it
}

// NewStore returns a store rooted at dir. mirror may be nil.
func NewStore(dir, runID string, mirror Mirror) *Store {
	return &Store{dir: dir, runID: runID, mirror: mirror, owners: map[string]string{}}
}

// Dir returns the local evidence directory.
func (s *Store) Dir() string { return s.dir }

// Resolve maps a step path to a location inside the evidence directory.
// Absolute paths and paths escaping the directory are rejected.
func (s *Store) Resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if name == "" || clean == "." {
		return "", errs.New(errs.InvalidArgument, "evidence path is empty")
	}
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errs.Newf(errs.InvalidArgument, "evidence path %q escapes %s", name, s.dir)
	}
	return filepath.Join(s.dir, clean), nil
}

// Write stores data under name for scenario and mirrors it when configured.
// Local write failures are returned as IO errors; mirror failures are logged.
func (s *Store) Write(ctx context.Context, scenario, name string, data []byte) (Artifact, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return Artifact{}, err
	}
	path = s.claim(scenario, path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Artifact{}, errs.Wrap(errs.IO, fmt.Sprintf("create evidence directory for %s", name), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, errs.Wrap(errs.IO, fmt.Sprintf("write evidence %s", name), err)
	}

	a := Artifact{Scenario: scenario, Name: filepath.ToSlash(filepath.Clean(name)), Path: path}
	if s.mirror != nil {
		key := s.Key(scenario, a.Name)
		if err := s.mirror.PutObject(ctx, key, data, contentTypeFor(name)); err != nil {
			obs.From(ctx).Warn("evidence_mirror_failed", "key", key, "error", err)
		} else {
			a.Mirrored = s.mirror.Location(key)
		}
	}

	s.mu.Lock()
	s.artifacts = append(s.artifacts, a)
	s.mu.Unlock()

	obs.From(ctx).Info("evidence_written", "path", path, "bytes", len(data), "mirrored", a.Mirrored != "")
	return a, nil
}

// claim reserves path for scenario. A path already written by another
// scenario in this run gets the scenario name as a prefix instead.
func (s *Store) claim(scenario, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.owners[path]; ok && owner != scenario {
		path = filepath.Join(filepath.Dir(path), scenario+"-"+filepath.Base(path))
	}
	s.owners[path] = scenario
	return path
}

// Key is the mirror key for name: <run-id>/<scenario>/<name>.
func (s *Store) Key(scenario, name string) string {
	return strings.Join([]string{s.runID, scenario, filepath.ToSlash(name)}, "/")
}

// Artifacts returns everything written so far, in write order.
func (s *Store) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
