// Package project manages the on-disk project layout: one directory per
// project id with resource subdirectories, exports, and a project.json
// manifest. The core only adds artifacts; it never rewrites existing files.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manifest is the project.json at the project root.
type Manifest struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
	Status       string    `json:"status"`
	Version      string    `json:"version"`
}

// resource subdirectories under <project>/resources.
var resourceDirs = []string{"scripts", "voiceovers", "broll", "images", "audio", "videos"}

// AssetKind classifications derived from file extension.
const (
	KindScript    = "script"
	KindImage     = "image"
	KindAudio     = "audio"
	KindVideo     = "video"
	KindOther     = "other"
	manifestName  = "project.json"
	defaultStatus = "active"
)

// Store resolves and maintains project directories under a configured root.
type Store struct {
	root string
}

// NewStore creates a project store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Dir returns the directory of a project id.
func (s *Store) Dir(projectID string) string {
	return filepath.Join(s.root, projectID)
}

// Ensure creates the project directory tree and manifest if absent, and
// returns the manifest.
func (s *Store) Ensure(projectID, name string) (*Manifest, error) {
	if projectID == "" {
		projectID = uuid.NewString()
	}
	dir := s.Dir(projectID)
	for _, sub := range resourceDirs {
		if err := os.MkdirAll(filepath.Join(dir, "resources", sub), 0o755); err != nil {
			return nil, fmt.Errorf("create project tree: %w", err)
		}
	}
	for _, sub := range []string{"exports", "temp"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create project tree: %w", err)
		}
	}

	manifestPath := filepath.Join(dir, manifestName)
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", manifestName, err)
		}
		return &m, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", manifestName, err)
	}

	now := time.Now().UTC()
	m := &Manifest{
		ID:           projectID,
		Name:         name,
		CreatedAt:    now,
		LastModified: now,
		Status:       defaultStatus,
		Version:      "1",
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", manifestName, err)
	}
	return m, nil
}

// Script returns the project's script text when a script.txt or script.json
// exists, else empty.
func (s *Store) Script(projectID string) (string, error) {
	dir := s.Dir(projectID)
	candidates := []string{
		filepath.Join(dir, "script.txt"),
		filepath.Join(dir, "resources", "scripts", "script.txt"),
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	jsonCandidates := []string{
		filepath.Join(dir, "script.json"),
		filepath.Join(dir, "resources", "scripts", "script.json"),
	}
	for _, path := range jsonCandidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc struct {
			Script string `json:"script"`
			Text   string `json:"text"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if doc.Script != "" {
			return doc.Script, nil
		}
		return doc.Text, nil
	}
	return "", nil
}

// Asset describes one classified file in a project.
type Asset struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Size int64  `json:"size"`
}

// Assets walks the resource directories and classifies files by extension.
func (s *Store) Assets(projectID string) ([]Asset, error) {
	base := filepath.Join(s.Dir(projectID), "resources")
	var assets []Asset
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		assets = append(assets, Asset{
			Path: path,
			Kind: ClassifyExt(filepath.Ext(path)),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate assets: %w", err)
	}
	return assets, nil
}

// WriteArtifact writes a new artifact into the named resource bucket and
// returns its path. Existing files are never overwritten; a numeric suffix
// is appended instead.
func (s *Store) WriteArtifact(projectID, bucket, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.Dir(projectID), "resources", bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	path := filepath.Join(dir, filename)
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	s.touch(projectID)
	return path, nil
}

// touch updates lastModified in the manifest, best effort.
func (s *Store) touch(projectID string) {
	manifestPath := filepath.Join(s.Dir(projectID), manifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	m.LastModified = time.Now().UTC()
	if out, err := json.MarshalIndent(&m, "", "  "); err == nil {
		_ = os.WriteFile(manifestPath, out, 0o644)
	}
}

// ClassifyExt maps a file extension to an asset kind.
func ClassifyExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "txt", "md", "json":
		return KindScript
	case "jpg", "jpeg", "png", "gif", "webp":
		return KindImage
	case "mp3", "wav", "ogg", "m4a", "flac":
		return KindAudio
	case "mp4", "mov", "avi", "mkv", "webm":
		return KindVideo
	default:
		return KindOther
	}
}
