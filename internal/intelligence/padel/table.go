package padel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// ReadTable parses a descriptor CSV. A leading Name column is split into
// Names. Empty cells read as NaN.
func ReadTable(r io.Reader) (*molecule.DescriptorTable, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("descriptor table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	nameIdx := -1
	for i, h := range header {
		if h == molecule.NameColumn {
			nameIdx = i
			break
		}
	}

	t := &molecule.DescriptorTable{}
	for i, h := range header {
		if i != nameIdx {
			t.Columns = append(t.Columns, h)
		}
	}
	if nameIdx >= 0 {
		t.Names = []string{}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, 0, len(t.Columns))
		for i, cell := range rec {
			if i == nameIdx {
				t.Names = append(t.Names, cell)
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("descriptor table has a header but no rows")
	}
	return t, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadTableFile reads the table at path and checks it has want rows.
// want <= 0 skips the row count check.
func ReadTableFile(path string, want int) (*molecule.DescriptorTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDescribe, "descriptor table unreadable").WithDetail(path)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDescribe, "descriptor table unreadable").WithDetail(err.Error())
	}
	if want > 0 && t.Len() != want {
		return nil, apperrors.New(apperrors.ErrCodeDescribe, "descriptor table row count mismatch").
			WithDetail(fmt.Sprintf("got %d rows for %d molecules", t.Len(), want))
	}
	return t, nil
}

//Personal.AI order the ending
