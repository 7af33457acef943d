package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Parse decodes a recipe document. JSON is detected by a leading '{';
// anything else is decoded as YAML.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("recipe: empty document")
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("recipe: decoding json: %w", err)
		}
		return &r, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(trimmed))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("recipe: decoding yaml: %w", err)
	}
	return &r, nil
}

// LoadFile reads and parses a recipe file.
func LoadFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("recipe: parsing %s: %w", path, err)
	}
	return r, nil
}

var recipeExts = []string{".yaml", ".yml", ".json"}

// FileLoader loads recipes from definition files on disk.
type FileLoader struct {
	dirs []string
}

// NewFileLoader creates a loader that searches the given directories.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load finds {id}.yaml, {id}.yml or {id}.json in the configured directories.
func (l *FileLoader) Load(id string) (*Recipe, error) {
	for _, dir := range l.dirs {
		for _, ext := range recipeExts {
			path := filepath.Join(dir, id+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			r, err := LoadFile(path)
			if err != nil {
				return nil, err
			}
			if r.ID == "" {
				r.ID = id
			}
			return r, nil
		}
	}
	return nil, fmt.Errorf("recipe: %q not found in %v", id, l.dirs)
}

// LoadAll parses every recipe file in the configured directories. Files
// without an id take their base name. Later directories do not override
// ids already loaded.
func (l *FileLoader) LoadAll() ([]*Recipe, error) {
	seen := make(map[string]bool)
	var out []*Recipe
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("recipe: reading %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && hasRecipeExt(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			r, err := LoadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			if r.ID == "" {
				r.ID = strings.TrimSuffix(name, filepath.Ext(name))
			}
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func hasRecipeExt(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range recipeExts {
		if ext == e {
			return true
		}
	}
	return false
}
