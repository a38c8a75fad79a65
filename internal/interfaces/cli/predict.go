package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

type predictOptions struct {
	input  string
	output string
}

// predictSummary is what predict prints once the CSV is written.
type predictSummary struct {
	RunID     string   `json:"run_id"`
	Molecules int      `json:"molecules"`
	Info      string   `json:"info"`
	Warnings  []string `json:"warnings,omitempty"`
	Output    string   `json:"output"`
	CacheHits int      `json:"cache_hits,omitempty"`

	rows [][]string
}

func (s *predictSummary) String() string {
	out := fmt.Sprintf("Run %s: scored %d molecules.\n%s\nResults written to %s", s.RunID, s.Molecules, s.Info, s.Output)
	for _, w := range s.Warnings {
		out += "\nWarning: " + w
	}
	return out
}

func (s *predictSummary) TableHeaders() []string {
	return []string{"Molecule_ID", "SMILES", "Predicted_pIC50"}
}

func (s *predictSummary) TableRows() [][]string { return s.rows }

func newPredictCmd() *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a SMILES file locally",
		Long: "Runs the descriptor and prediction pipeline in-process on a\n" +
			"tab-separated file of SMILES and Molecule_ID, writes the results CSV\n" +
			"and records the run in the local ledger.",
		Example: "  achectl predict -i molecules.txt -o results.csv\n  cat molecules.txt | achectl predict -i - -o -",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input file, - for stdin (required)")
	cmd.Flags().StringVarP(&opts.output, "out", "o", appprediction.ResultFilename, "results CSV path, - for stdout")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runPredict(cmd *cobra.Command, opts *predictOptions) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cc.commandContext(cmd)
	defer cancel()

	in, name, err := openInput(cmd, opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	pipeline, err := cc.factories.Pipeline(ctx, cc)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pipeline.Close(); cerr != nil {
			cc.Logger.Warn("failed to close pipeline", logging.Err(cerr))
		}
	}()

	out, err := pipeline.Service.Predict(ctx, &appprediction.PredictInput{
		Name:   name,
		Data:   in,
		Source: prediction.SourceCLI,
	})
	if err != nil {
		return err
	}

	dest := opts.output
	if dest == "-" {
		if _, err := cmd.OutOrStdout().Write(out.CSV); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to write results")
		}
		// The table already went to stdout; the summary goes to the log.
		cc.Logger.Info("prediction complete", logging.String("run_id", out.Run.ID), logging.String("info", out.Info))
		return nil
	}
	if err := writeFileAtomic(dest, out.CSV); err != nil {
		return err
	}

	summary := &predictSummary{
		RunID:     out.Run.ID,
		Molecules: len(out.Run.Results),
		Info:      out.Info,
		Warnings:  out.Run.Warnings,
		Output:    dest,
		CacheHits: out.CacheHits,
	}
	for _, p := range out.Run.Results {
		summary.rows = append(summary.rows, []string{p.MoleculeID, p.SMILES, strconv.FormatFloat(p.PredictedPIC50, 'f', 4, 64)})
	}
	return PrintResult(cmd, summary)
}

// openInput opens path, or stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, string, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeValidation, "cannot open input file").WithDetail(path)
	}
	return f, filepath.Base(path), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".achectl-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot create output file").WithDetail(path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write results").WithDetail(path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write results").WithDetail(path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to move results into place").WithDetail(path)
	}
	return nil
}

// diagnostics lists the user-facing messages of a pipeline or API failure.
func diagnostics(err error) []string {
	if se, ok := appprediction.AsStageError(err); ok {
		return se.Diagnostics()
	}
	if ae := asAPIError(err); ae != nil && len(ae.Diagnostics) > 0 {
		return ae.Diagnostics
	}
	return nil
}

//Personal.AI order the ending
