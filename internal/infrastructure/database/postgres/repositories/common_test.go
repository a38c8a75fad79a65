package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

func runRow(created time.Time, warnings string) scanFunc {
	return func(dest ...any) error {
		*dest[0].(*string) = "run-1"
		*dest[1].(*time.Time) = created
		*dest[2].(*string) = "api"
		*dest[3].(*string) = "input.smi"
		*dest[4].(*string) = "digest"
		*dest[5].(*string) = "command"
		*dest[6].(*int) = 2
		*dest[7].(*int) = 3
		*dest[8].(*int) = 4
		*dest[9].(*float64) = 0.75
		*dest[10].(*[]byte) = []byte(warnings)
		*dest[11].(*int64) = 12
		*dest[12].(*string) = "failed"
		*dest[13].(*string) = "align"
		*dest[14].(*string) = "PIPE_006"
		*dest[15].(*string) = "insufficient feature coverage"
		return nil
	}
}

func TestScanRun(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	run, err := scanRun(runRow(created, `["low feature coverage"]`))
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, created, run.CreatedAt)
	assert.Equal(t, prediction.Source("api"), run.Source)
	assert.Equal(t, prediction.RunStatus("failed"), run.Status)
	assert.Equal(t, prediction.Stage("align"), run.FailedStage)
	assert.Equal(t, 3, run.FeaturesMatched)
	assert.Equal(t, 4, run.FeaturesTotal)
	assert.InDelta(t, 0.75, run.Coverage, 1e-9)
	assert.Equal(t, []string{"low feature coverage"}, run.Warnings)
}

func TestScanRun_EmptyWarningsAreNil(t *testing.T) {
	run, err := scanRun(runRow(time.Now(), `[]`))
	require.NoError(t, err)
	assert.Nil(t, run.Warnings)
}

func TestScanRun_Errors(t *testing.T) {
	_, err := scanRun(scanFunc(func(...any) error { return errors.New("conn reset") }))
	assert.EqualError(t, err, "conn reset")

	_, err = scanRun(runRow(time.Now(), `{not json`))
	assert.Error(t, err)
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, []string{}, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}

//Personal.AI order the ending
