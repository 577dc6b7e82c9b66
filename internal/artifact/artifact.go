// Package artifact extracts file blocks from model output, writes them
// to disk, and maintains a JSON manifest.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	natomic "github.com/natefinch/atomic"

	"github.com/cliengineer/cliengineer/internal/events"
)

// Type values. Other(string) is represented by any string not among
// the named constants below.
const (
	TypeSourceCode    = "SourceCode"
	TypeConfiguration = "Configuration"
	TypeDocumentation = "Documentation"
	TypeTest          = "Test"
	TypeBuild         = "Build"
	TypeScript        = "Script"
	TypeData          = "Data"
)

// Artifact is a single file produced by the loop.
type Artifact struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Path      string            `json:"path"`
	Content   string            `json:"-"` // not persisted in the manifest; lives on disk
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// manifestRecord is the on-disk shape persisted to manifest.json: one
// record per artifact with its id, name, type, relative path, and
// timestamps.
type manifestRecord struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Path      string            `json:"path"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Manager writes artifacts to disk and keeps the manifest in sync.
type Manager struct {
	mu           sync.Mutex
	dir          string
	artifacts    []Artifact
	manifestPath string
	bus          *events.Bus
	now          func() time.Time
}

// New creates a Manager rooted at dir, creating dir if necessary.
func New(dir string, bus *events.Bus) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Err: err}
	}
	return &Manager{
		dir:          dir,
		manifestPath: filepath.Join(dir, "manifest.json"),
		bus:          bus,
		now:          time.Now,
	}, nil
}

// IOError wraps a filesystem failure encountered while writing or
// reading an artifact.
type IOError struct {
	Op   string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("artifact io error (%s): %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// CreateArtifact resolves a path for name, writes content to disk
// atomically, records the artifact in memory, persists the manifest,
// and emits a creation event.
func (m *Manager) CreateArtifact(name, typ, content string, metadata map[string]string) (*Artifact, error) {
	ext := extensionFor(typ, metadata)
	path := resolvePath(m.dir, name, ext)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Err: err}
	}

	if err := natomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return nil, &IOError{Op: "write", Err: err}
	}

	now := m.now()
	art := Artifact{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      typ,
		Path:      path,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.artifacts = append(m.artifacts, art)
	snapshot := make([]Artifact, len(m.artifacts))
	copy(snapshot, m.artifacts)
	m.mu.Unlock()

	if err := m.persistManifest(snapshot); err != nil {
		return nil, &IOError{Op: "manifest", Err: err}
	}

	if m.bus != nil {
		m.bus.Emit(events.Event{Kind: events.KindArtifactCreated, ArtifactName: name, ArtifactPath: path, ArtifactType: typ})
	}

	return &art, nil
}

func (m *Manager) persistManifest(artifacts []Artifact) error {
	records := make([]manifestRecord, len(artifacts))
	for i, a := range artifacts {
		rel, err := filepath.Rel(m.dir, a.Path)
		if err != nil {
			rel = a.Path
		}
		records[i] = manifestRecord{ID: a.ID, Name: a.Name, Type: a.Type, Path: rel, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt, Metadata: a.Metadata}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return natomic.WriteFile(m.manifestPath, strings.NewReader(string(data)))
}

// ListArtifacts is a snapshot of every artifact created so far.
func (m *Manager) ListArtifacts() []Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Artifact, len(m.artifacts))
	copy(out, m.artifacts)
	return out
}

// Cleanup removes files under the artifact directory not referenced by
// any artifact record. Called on shutdown only if configured to.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	known := make(map[string]bool, len(m.artifacts))
	for _, a := range m.artifacts {
		known[filepath.Clean(a.Path)] = true
	}
	known[filepath.Clean(m.manifestPath)] = true
	m.mu.Unlock()

	return filepath.Walk(m.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !known[filepath.Clean(path)] {
			_ = os.Remove(path)
		}
		return nil
	})
}

// resolvePath joins name onto dir, appending ext only when name has
// neither an extension nor a path separator.
func resolvePath(dir, name, ext string) string {
	if strings.ContainsAny(name, "/\\") || filepath.Ext(name) != "" {
		return filepath.Join(dir, name)
	}
	return filepath.Join(dir, name+"."+ext)
}

// extensionFor picks a file extension for typ, preferring an explicit
// language hint in metadata when present.
func extensionFor(typ string, metadata map[string]string) string {
	switch typ {
	case TypeSourceCode:
		if lang := metadata["language"]; lang != "" {
			return languageExtension(lang)
		}
		return "txt"
	case TypeConfiguration:
		if f := metadata["format"]; f == "json" || f == "yaml" || f == "toml" {
			return f
		}
		return "toml"
	case TypeDocumentation:
		return "md"
	case TypeTest:
		if lang := metadata["language"]; lang != "" {
			return "test." + languageExtension(lang)
		}
		return "test.txt"
	case TypeScript:
		return "sh"
	case TypeBuild:
		if f := metadata["format"]; f != "" {
			return f
		}
		return "mk"
	case TypeData:
		return "json"
	default:
		// Other(string): the type string itself names the extension.
		return typ
	}
}

func languageExtension(lang string) string {
	switch strings.ToLower(lang) {
	case "python":
		return "py"
	case "go", "golang":
		return "go"
	case "rust":
		return "rs"
	case "javascript":
		return "js"
	case "typescript":
		return "ts"
	case "java":
		return "java"
	case "c":
		return "c"
	case "cpp", "c++":
		return "cpp"
	case "ruby":
		return "rb"
	case "shell", "bash":
		return "sh"
	default:
		return "txt"
	}
}
