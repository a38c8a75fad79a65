package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/pkg/client"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

type jobView struct {
	*client.Job
}

func (v jobView) String() string {
	s := fmt.Sprintf("Job %s: %s (%d molecules, %d attempts)", v.ID, v.Status, v.MoleculeCount, v.Attempts)
	if v.RunID != "" {
		s += "\nRun: " + v.RunID
	}
	if v.DownloadURL != "" {
		s += "\nDownload: " + v.DownloadURL
	}
	if v.Error != "" {
		s += fmt.Sprintf("\nError [%s]: %s", v.ErrorCode, v.Error)
	}
	return s
}

func (v jobView) TableHeaders() []string {
	return []string{"ID", "STATUS", "MOLECULES", "RUN", "ERROR"}
}

func (v jobView) TableRows() [][]string {
	return [][]string{{v.ID, v.Status, strconv.Itoa(v.MoleculeCount), v.RunID, v.Error}}
}

type submitOptions struct {
	input    string
	wait     bool
	interval time.Duration
}

func newSubmitCmd() *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Queue a SMILES file on the API server",
		Example: "  achectl submit -i molecules.txt --wait",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input file, - for stdin (required)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "poll interval (default: client.wait from config)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runSubmit(cmd *cobra.Command, opts *submitOptions) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	api, err := cc.remote()
	if err != nil {
		return err
	}
	ctx, cancel := cc.commandContext(cmd)
	defer cancel()

	in, _, err := openInput(cmd, opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	job, err := api.SubmitJob(ctx, in)
	if err != nil {
		return err
	}
	if !opts.wait {
		return PrintResult(cmd, jobView{job})
	}

	interval := opts.interval
	if interval <= 0 {
		interval = cc.Config.Client.Wait
	}
	done, err := api.WaitJob(ctx, job.ID, interval)
	if err != nil {
		if done != nil && stderrors.Is(err, context.DeadlineExceeded) {
			_ = PrintResult(cmd, jobView{done})
		}
		return err
	}
	if err := PrintResult(cmd, jobView{done}); err != nil {
		return err
	}
	if done.Status == client.JobFailed {
		return errors.Newf(errors.ErrCodeConflict, "job %s failed", done.ID).WithDetail(done.Error)
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	var download string
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the state of a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			api, err := cc.remote()
			if err != nil {
				return err
			}
			ctx, cancel := cc.commandContext(cmd)
			defer cancel()

			job, err := api.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			if download != "" && job.RunID != "" {
				if err := downloadRun(ctx, cmd, api, job.RunID, download); err != nil {
					return err
				}
			}
			return PrintResult(cmd, jobView{job})
		},
	}
	cmd.Flags().StringVar(&download, "download", "", "write the results CSV of a finished job to this path")
	return cmd
}

func downloadRun(ctx context.Context, cmd *cobra.Command, api *client.Client, runID, dest string) error {
	if dest == "-" {
		_, err := api.DownloadCSV(ctx, runID, cmd.OutOrStdout())
		return err
	}
	var buf bytes.Buffer
	if _, err := api.DownloadCSV(ctx, runID, &buf); err != nil {
		return err
	}
	return writeFileAtomic(dest, buf.Bytes())
}

func asAPIError(err error) *client.APIError {
	var ae *client.APIError
	if stderrors.As(err, &ae) {
		return ae
	}
	return nil
}

//Personal.AI order the ending
