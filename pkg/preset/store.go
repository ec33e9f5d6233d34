// ABOUTME: YAML-backed preset store with load, save and lookup
// ABOUTME: Unknown file keys are rejected so typos surface immediately
package preset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk layout: one top-level presets map.
type fileSchema struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Store holds named presets and knows where they live on disk.
type Store struct {
	path string

	mu      sync.Mutex
	presets map[string]Preset
}

// DefaultPath returns the conventional preset file location under the
// user's configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("presets: locate config dir: %w", err)
	}
	return filepath.Join(dir, "sdplay", "presets.yml"), nil
}

// Open loads the preset file at path. A missing file is not an error;
// it yields an empty store that Save will create.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Store{path: path, presets: map[string]Preset{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("presets: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("presets: parse %q: %w", path, err)
	}
	s.path = path
	return s, nil
}

// FromReader decodes a preset file from r. Useful in tests where preset
// files are constructed from string literals.
func FromReader(r io.Reader) (*Store, error) {
	var file fileSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if file.Presets == nil {
		file.Presets = map[string]Preset{}
	}

	for name, p := range file.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return &Store{presets: file.Presets}, nil
}

// Save writes the store back to its file, creating the directory on
// first use.
func (s *Store) Save() error {
	if s.path == "" {
		return fmt.Errorf("presets: store has no file path")
	}

	s.mu.Lock()
	out, err := yaml.Marshal(fileSchema{Presets: s.presets})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("presets: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("presets: create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return fmt.Errorf("presets: write %q: %w", s.path, err)
	}
	return nil
}

// Names lists the stored preset names in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named preset.
func (s *Store) Get(name string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Put validates and stores a preset under name, replacing any existing
// one. The change is in memory until Save.
func (s *Store) Put(name string, p Preset) error {
	if name == "" {
		return fmt.Errorf("presets: empty name")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("preset %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[name] = p
	return nil
}

// Delete removes the named preset. The change is in memory until Save.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.presets, name)
	return nil
}
