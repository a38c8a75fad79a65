// Package molecule defines the plain data carried through a prediction run:
// input molecules, the descriptor table produced for them and the scored rows.
// No pipeline logic lives here, so the package is safe to import from any layer
// including the public SDK.
package molecule

import (
	"math"
)

// NameColumn is the identifier column the descriptor generator writes first.
const NameColumn = "Name"

// ResultHeader is the header row of every emitted results table.
var ResultHeader = []string{"Molecule_ID", "SMILES", "Predicted_pIC50"}

// Molecule is one line of the uploaded input.
type Molecule struct {
	SMILES string `json:"smiles"`
	ID     string `json:"molecule_id"`
}

// Prediction is one scored row of a results table.
type Prediction struct {
	MoleculeID     string  `json:"molecule_id"`
	SMILES         string  `json:"smiles"`
	PredictedPIC50 float64 `json:"predicted_pic50"`
}

// DescriptorTable is the descriptor generator output with the identifier
// column split out. Rows[i][j] is the value of Columns[j] for molecule i.
type DescriptorTable struct {
	// Names holds the identifier column, or nil when the output had none.
	Names   []string    `json:"names,omitempty"`
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// Len returns the number of rows.
func (t *DescriptorTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasName reports whether the source table carried a Name column.
func (t *DescriptorTable) HasName() bool {
	return t != nil && t.Names != nil
}

// Index returns the position of column name, or -1.
func (t *DescriptorTable) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnIndex builds a name to position lookup.
func (t *DescriptorTable) ColumnIndex() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	return idx
}

// Head returns a copy of the first n rows.
func (t *DescriptorTable) Head(n int) *DescriptorTable {
	if n > t.Len() {
		n = t.Len()
	}
	if n < 0 {
		n = 0
	}
	out := &DescriptorTable{Columns: append([]string(nil), t.Columns...)}
	if t.Names != nil {
		out.Names = append([]string(nil), t.Names[:n]...)
	}
	out.Rows = make([][]float64, n)
	for i := 0; i < n; i++ {
		out.Rows[i] = append([]float64(nil), t.Rows[i]...)
	}
	return out
}

// FillNaN replaces NaN cells with v and returns how many were replaced.
func (t *DescriptorTable) FillNaN(v float64) int {
	n := 0
	for _, row := range t.Rows {
		for j, x := range row {
			if math.IsNaN(x) {
				row[j] = v
				n++
			}
		}
	}
	return n
}

// Bits returns the columns whose name starts with prefix as a packed bit
// vector, one bit per column, set when the value is non-zero. Used to store
// binary fingerprints.
func (t *DescriptorTable) Bits(row int, prefix string) (bits []byte, width int) {
	var cols []int
	for j, c := range t.Columns {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			cols = append(cols, j)
		}
	}
	width = len(cols)
	bits = make([]byte, (width+7)/8)
	for k, j := range cols {
		if t.Rows[row][j] != 0 {
			bits[k/8] |= 1 << (uint(k) % 8)
		}
	}
	return bits, width
}

//Personal.AI order the ending
