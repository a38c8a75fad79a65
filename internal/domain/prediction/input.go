package prediction

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// maxLineBytes bounds a single input line. SMILES for large macrocycles run to
// a few kilobytes.
const maxLineBytes = 1 << 20

// ParseMolecules reads SMILES<TAB>Molecule_ID lines. Blank lines are skipped
// and CRLF endings accepted. max <= 0 disables the molecule limit.
func ParseMolecules(r io.Reader, max int) ([]molecule.Molecule, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var mols []molecule.Molecule
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, apperrors.New(apperrors.ErrCodeIngest, apperrors.DefaultMessageForCode(apperrors.ErrCodeIngest)).
				WithDetail(fmt.Sprintf("line %d: expected 2 tab-separated fields (SMILES, Molecule_ID), got %d", lineNo, len(fields)))
		}
		// Fields are kept verbatim.
		smiles, id := fields[0], fields[1]
		if strings.TrimSpace(smiles) == "" || strings.TrimSpace(id) == "" {
			return nil, apperrors.New(apperrors.ErrCodeIngest, apperrors.DefaultMessageForCode(apperrors.ErrCodeIngest)).
				WithDetail(fmt.Sprintf("line %d: SMILES and Molecule_ID must not be empty", lineNo))
		}
		mols = append(mols, molecule.Molecule{SMILES: smiles, ID: id})
		if max > 0 && len(mols) > max {
			return nil, apperrors.New(apperrors.ErrCodeIngest, apperrors.DefaultMessageForCode(apperrors.ErrCodeIngest)).
				WithDetail(fmt.Sprintf("more than %d molecules in one upload", max))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeIngest, apperrors.DefaultMessageForCode(apperrors.ErrCodeIngest))
	}
	if len(mols) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeIngest, apperrors.DefaultMessageForCode(apperrors.ErrCodeIngest)).
			WithDetail("no molecules found")
	}
	return mols, nil
}

// WriteSMI writes molecules in the tab-separated form the descriptor
// generator reads, one per line in input order.
func WriteSMI(w io.Writer, mols []molecule.Molecule) error {
	bw := bufio.NewWriter(w)
	for _, m := range mols {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", m.SMILES, m.ID); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// BuildResults pairs each molecule with its prediction. Counts must match.
func BuildResults(mols []molecule.Molecule, values []float64) ([]molecule.Prediction, error) {
	if len(mols) != len(values) {
		return nil, fmt.Errorf("got %d predictions for %d molecules", len(values), len(mols))
	}
	out := make([]molecule.Prediction, len(mols))
	for i, m := range mols {
		out[i] = molecule.Prediction{MoleculeID: m.ID, SMILES: m.SMILES, PredictedPIC50: values[i]}
	}
	return out, nil
}

// WriteResultsCSV serializes results with the Molecule_ID,SMILES,Predicted_pIC50 header.
func WriteResultsCSV(w io.Writer, results []molecule.Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(molecule.ResultHeader); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{r.MoleculeID, r.SMILES, strconv.FormatFloat(r.PredictedPIC50, 'g', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ResultsCSV renders results to bytes.
func ResultsCSV(results []molecule.Prediction) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteResultsCSV(&buf, results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadResultsCSV parses a table written by WriteResultsCSV.
func ReadResultsCSV(r io.Reader) ([]molecule.Prediction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(molecule.ResultHeader)
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("empty results table")
	}
	out := make([]molecule.Prediction, 0, len(recs)-1)
	for i, rec := range recs[1:] {
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, molecule.Prediction{MoleculeID: rec[0], SMILES: rec[1], PredictedPIC50: v})
	}
	return out, nil
}

//Personal.AI order the ending
