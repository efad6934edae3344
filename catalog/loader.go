package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultFS embed.FS

const defaultFile = "default.yaml"

// File is the on-disk representation of a catalog.
type File struct {
	Items []Item `json:"items" yaml:"items"`
}

// Default returns the stock catalog: SODA, CHIPS, CANDY and WATER.
func Default() *Catalog {
	cat, err := LoadFS(defaultFS, defaultFile)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}

	return cat
}

// LoadBytes parses a YAML catalog document.
func LoadBytes(data []byte) (*Catalog, error) {
	var file File

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	return New(file.Items...)
}

// LoadFile reads and parses a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}

	return LoadBytes(data)
}

// LoadFS reads and parses a YAML catalog from a filesystem, e.g. an embed.FS.
func LoadFS(fsys fs.FS, path string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog from FS: %w", err)
	}

	return LoadBytes(data)
}

// Load returns the catalog at path, or the default catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	return LoadFile(path)
}
