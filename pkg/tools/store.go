package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when a named manifest does not exist.
	ErrNotFound = errors.New("tool not found")
	// ErrReserved is returned when a mutation targets a built-in tool name.
	ErrReserved = errors.New("tool name is reserved for a built-in tool")
)

// Store persists custom tool manifests on disk. The catalogue lives in a
// single manifest.json plus one <name>.js source file per tool, so individual
// tools can be inspected, backed up and restored without the running process.
//
// Mutations serialize against each other through a mutex and are atomic with
// respect to process crash: the catalogue is written to a temporary file and
// renamed into place, so a partially written catalogue is never observable by
// a subsequent load.
type Store struct {
	dir      string
	reserved map[string]bool
	mu       sync.Mutex
}

// catalogueEntry is the persisted form of a manifest, minus the source text
// which lives in its own file.
type catalogueEntry struct {
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Version     int         `json:"version"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewStore creates a manifest store rooted at dir. Names in reserved can
// never be written or deleted through this store.
func NewStore(dir string, reserved []string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	reservedSet := make(map[string]bool, len(reserved))
	for _, name := range reserved {
		reservedSet[name] = true
	}

	s := &Store{dir: dir, reserved: reservedSet}

	cataloguePath := s.cataloguePath()
	if _, err := os.Stat(cataloguePath); os.IsNotExist(err) {
		if err := s.writeCatalogue(map[string]catalogueEntry{}); err != nil {
			return nil, err
		}
	}

	log.Info().Str("dir", dir).Msg("Manifest store initialized")
	return s, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// CataloguePath returns the path of the persisted catalogue file.
func (s *Store) CataloguePath() string {
	return s.cataloguePath()
}

func (s *Store) cataloguePath() string {
	return filepath.Join(s.dir, "manifest.json")
}

func (s *Store) sourcePath(name string) string {
	return filepath.Join(s.dir, name+".js")
}

// Put inserts or overwrites a custom manifest. Version is incremented when a
// manifest with the same name already exists; CreatedAt is preserved.
func (s *Store) Put(m Manifest) (Manifest, error) {
	if err := ValidateName(m.Name); err != nil {
		return Manifest{}, err
	}
	if s.reserved[m.Name] {
		return Manifest{}, fmt.Errorf("%w: %s", ErrReserved, m.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	catalogue, err := s.readCatalogue()
	if err != nil {
		return Manifest{}, err
	}

	now := time.Now().UTC()
	entry := catalogueEntry{
		Description: m.Description,
		Parameters:  m.Parameters,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev, exists := catalogue[m.Name]; exists {
		entry.Version = prev.Version + 1
		entry.CreatedAt = prev.CreatedAt
	}

	// Source first: a crash between the two writes leaves an orphan source
	// file, never a catalogue entry pointing at a missing one.
	if err := atomicWriteFile(s.sourcePath(m.Name), []byte(m.Source), 0o644); err != nil {
		return Manifest{}, fmt.Errorf("failed to write tool source: %w", err)
	}

	catalogue[m.Name] = entry
	if err := s.writeCatalogue(catalogue); err != nil {
		return Manifest{}, err
	}

	m.Version = entry.Version
	m.CreatedAt = entry.CreatedAt
	m.UpdatedAt = entry.UpdatedAt

	log.Info().Str("tool", m.Name).Int("version", m.Version).Msg("Manifest persisted")
	return m, nil
}

// Get returns a single manifest, including its source text.
func (s *Store) Get(name string) (Manifest, error) {
	catalogue, err := s.readCatalogue()
	if err != nil {
		return Manifest{}, err
	}

	entry, exists := catalogue[name]
	if !exists {
		return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	source, err := os.ReadFile(s.sourcePath(name))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read tool source: %w", err)
	}

	return s.manifestFromEntry(name, entry, string(source)), nil
}

// List returns all custom manifests ordered by name.
func (s *Store) List() ([]Manifest, error) {
	catalogue, err := s.readCatalogue()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)

	manifests := make([]Manifest, 0, len(names))
	for _, name := range names {
		source, err := os.ReadFile(s.sourcePath(name))
		if err != nil {
			// A manifest entry without its source file is a damaged
			// record; skip it rather than failing the whole load.
			log.Warn().Str("tool", name).Err(err).Msg("Skipping manifest with missing source")
			continue
		}
		manifests = append(manifests, s.manifestFromEntry(name, catalogue[name], string(source)))
	}
	return manifests, nil
}

// Delete removes a custom manifest and its source file.
func (s *Store) Delete(name string) error {
	if s.reserved[name] {
		return fmt.Errorf("%w: %s", ErrReserved, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	catalogue, err := s.readCatalogue()
	if err != nil {
		return err
	}
	if _, exists := catalogue[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	delete(catalogue, name)
	if err := s.writeCatalogue(catalogue); err != nil {
		return err
	}

	if err := os.Remove(s.sourcePath(name)); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("tool", name).Err(err).Msg("Failed to remove tool source file")
	}

	log.Info().Str("tool", name).Msg("Manifest deleted")
	return nil
}

func (s *Store) manifestFromEntry(name string, entry catalogueEntry, source string) Manifest {
	return Manifest{
		Name:        name,
		Description: entry.Description,
		Parameters:  entry.Parameters,
		Source:      source,
		Version:     entry.Version,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

func (s *Store) readCatalogue() (map[string]catalogueEntry, error) {
	data, err := os.ReadFile(s.cataloguePath())
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}

	catalogue := map[string]catalogueEntry{}
	if err := json.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("catalogue is corrupt: %w", err)
	}
	return catalogue, nil
}

func (s *Store) writeCatalogue(catalogue map[string]catalogueEntry) error {
	data, err := json.MarshalIndent(catalogue, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalogue: %w", err)
	}
	if err := atomicWriteFile(s.cataloguePath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalogue: %w", err)
	}
	return nil
}

// atomicWriteFile writes data to a temporary file in the target directory and
// renames it over path, so readers observe either the old or the new content.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
