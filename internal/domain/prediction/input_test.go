package prediction

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

func TestParseMolecules_TwoRowsInOrder(t *testing.T) {
	mols, err := ParseMolecules(strings.NewReader("CCO\tmol1\nCCN\tmol2"), 0)
	require.NoError(t, err)
	assert.Equal(t, []molecule.Molecule{
		{SMILES: "CCO", ID: "mol1"},
		{SMILES: "CCN", ID: "mol2"},
	}, mols)
}

func TestParseMolecules_CRLFBlankLinesAndBOM(t *testing.T) {
	in := "\ufeffCCO\tmol1\r\n\r\n   \nc1ccccc1\tbenzene\r\n"
	mols, err := ParseMolecules(strings.NewReader(in), 0)
	require.NoError(t, err)
	require.Len(t, mols, 2)
	assert.Equal(t, "CCO", mols[0].SMILES)
	assert.Equal(t, "benzene", mols[1].ID)
}

func TestParseMolecules_DuplicateIDsAllowed(t *testing.T) {
	mols, err := ParseMolecules(strings.NewReader("CCO\tx\nCCN\tx\n"), 0)
	require.NoError(t, err)
	assert.Len(t, mols, 2)
}

func TestParseMolecules_FieldsKeptVerbatim(t *testing.T) {
	mols, err := ParseMolecules(strings.NewReader(" CCO\t mol 1 \r\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []molecule.Molecule{{SMILES: " CCO", ID: " mol 1 "}}, mols)
}

func TestParseMolecules_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		max    int
		detail string
	}{
		{"empty", "", 0, "no molecules"},
		{"only blanks", "\n\n", 0, "no molecules"},
		{"one field", "CCO\tmol1\nCCN\n", 0, "line 2"},
		{"three fields", "CCO\tmol1\textra\n", 0, "got 3"},
		{"space separated", "CCO mol1\n", 0, "line 1"},
		{"empty id", "CCO\t\n", 0, "must not be empty"},
		{"whitespace smiles", "CCO\tmol1\n  \tmol2\n", 0, "line 2: SMILES and Molecule_ID must not be empty"},
		{"too many", "C\ta\nC\tb\nC\tc\n", 2, "more than 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMolecules(strings.NewReader(tt.input), tt.max)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIngest))
			assert.Contains(t, err.Error(), tt.detail)
		})
	}
}

func TestWriteSMI(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSMI(&buf, []molecule.Molecule{{SMILES: "CCO", ID: "mol1"}, {SMILES: "CCN", ID: "mol2"}}))
	assert.Equal(t, "CCO\tmol1\nCCN\tmol2\n", buf.String())
}

func TestBuildResults(t *testing.T) {
	mols := []molecule.Molecule{{SMILES: "CCO", ID: "mol1"}, {SMILES: "CCN", ID: "mol2"}}

	res, err := BuildResults(mols, []float64{5.1, 6.2})
	require.NoError(t, err)
	for i, m := range mols {
		assert.Equal(t, m.ID, res[i].MoleculeID)
		assert.Equal(t, m.SMILES, res[i].SMILES)
	}

	_, err = BuildResults(mols, []float64{5.1})
	assert.Error(t, err)
}

func TestResultsCSV(t *testing.T) {
	rows := []molecule.Prediction{
		{MoleculeID: "mol1", SMILES: "CCO", PredictedPIC50: 5.25},
		{MoleculeID: "mol,2", SMILES: "C(=O)O", PredictedPIC50: 6},
	}
	b, err := ResultsCSV(rows)
	require.NoError(t, err)
	assert.Equal(t, "Molecule_ID,SMILES,Predicted_pIC50\nmol1,CCO,5.25\n\"mol,2\",C(=O)O,6\n", string(b))

	back, err := ReadResultsCSV(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, rows, back)
}

func TestReadResultsCSV_Malformed(t *testing.T) {
	_, err := ReadResultsCSV(strings.NewReader(""))
	assert.Error(t, err)
	_, err = ReadResultsCSV(strings.NewReader("Molecule_ID,SMILES,Predicted_pIC50\nm,C,abc\n"))
	assert.Error(t, err)
}

//Personal.AI order the ending
