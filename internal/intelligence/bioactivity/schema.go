// Package bioactivity scores descriptor tables with the trained AChE
// regression model. It owns the reference feature schema, alignment of
// descriptor tables onto that schema, the model backends and the artifact
// lifecycle (load, digest, hot reload, object store sync).
package bioactivity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Schema is the ordered feature list the model was trained on.
type Schema struct {
	Features []string
	index    map[string]int
}

// NewSchema builds a schema from feature names. Duplicates are rejected.
func NewSchema(features []string) (*Schema, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("schema has no features")
	}
	idx := make(map[string]int, len(features))
	for i, f := range features {
		if f == "" {
			return nil, fmt.Errorf("schema column %d is blank", i+1)
		}
		if _, dup := idx[f]; dup {
			return nil, fmt.Errorf("schema lists %q twice", f)
		}
		idx[f] = i
	}
	return &Schema{Features: features, index: idx}, nil
}

// ParseSchema reads the header row of a descriptor list CSV. Data rows, if
// any, are ignored.
func ParseSchema(r io.Reader) (*Schema, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("schema file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read schema header: %w", err)
	}
	features := make([]string, len(header))
	for i, h := range header {
		features[i] = strings.TrimSpace(h)
	}
	features[0] = strings.TrimPrefix(features[0], "\ufeff")
	return NewSchema(features)
}

// LoadSchema reads the schema file at path.
func LoadSchema(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSchema(f)
}

// Len returns the number of features.
func (s *Schema) Len() int { return len(s.Features) }

// Index returns the position of feature name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

//Personal.AI order the ending
