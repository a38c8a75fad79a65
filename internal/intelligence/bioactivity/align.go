package bioactivity

import (
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// Alignment is a descriptor table reindexed onto a schema.
type Alignment struct {
	// Matrix has one row per molecule and one column per schema feature.
	Matrix [][]float64
	// Matched counts schema features present in the descriptor table.
	Matched int
	Total   int
	// Missing lists schema features that were zero-filled.
	Missing []string
	// Extra lists descriptor columns the schema does not use.
	Extra    []string
	Coverage float64
}

// Align drops the identifier column, reindexes the table onto the schema and
// fills absent features with zero. Aligning an already aligned table is a
// no-op.
func Align(t *molecule.DescriptorTable, s *Schema) *Alignment {
	cols := t.ColumnIndex()

	src := make([]int, s.Len())
	a := &Alignment{Total: s.Len()}
	for j, f := range s.Features {
		i, ok := cols[f]
		if !ok || f == molecule.NameColumn {
			src[j] = -1
			a.Missing = append(a.Missing, f)
			continue
		}
		src[j] = i
		a.Matched++
	}
	for _, c := range t.Columns {
		if s.Index(c) < 0 {
			a.Extra = append(a.Extra, c)
		}
	}
	if a.Total > 0 {
		a.Coverage = float64(a.Matched) / float64(a.Total)
	}

	a.Matrix = make([][]float64, t.Len())
	for r, row := range t.Rows {
		out := make([]float64, s.Len())
		for j, i := range src {
			if i >= 0 {
				out[j] = row[i]
			}
		}
		a.Matrix[r] = out
	}
	return a
}

// Table returns the aligned matrix as a descriptor table with schema columns.
func (a *Alignment) Table(s *Schema) *molecule.DescriptorTable {
	return &molecule.DescriptorTable{
		Columns: append([]string(nil), s.Features...),
		Rows:    a.Matrix,
	}
}

//Personal.AI order the ending
