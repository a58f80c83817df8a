package character

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a character YAML file.
//
// Example:
//
//	characters:
//	  - id: mina
//	    name: Mina Harker
//	    player: "123456789012345678"
//	    detail:
//	      name: character
//	      children:
//	        - name: Resource
//	          children:
//	            - name: HP
//	              value: "12"
//	            - name: SAN
//	              value: "60"
type File struct {
	Characters []Character `yaml:"characters"`
}

// LoadFile reads and parses a character file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("character: open file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("character: parse file %q: %w", path, err)
	}
	return cf, nil
}

// LoadFromReader parses character YAML from r.
func LoadFromReader(r io.Reader) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("character: decode yaml: %w", err)
	}
	return &cf, nil
}

// Import validates every character of f and adds them to store. Nothing is
// imported when validation fails.
func Import(ctx context.Context, store Store, f *File) (int, error) {
	if f == nil {
		return 0, fmt.Errorf("character: file must not be nil")
	}
	for i, c := range f.Characters {
		if err := Validate(c); err != nil {
			return 0, fmt.Errorf("character: characters[%d] (%q): %w", i, c.Name, err)
		}
	}
	return store.BulkImport(ctx, f.Characters)
}
