package cli

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
)

type artifactReport struct {
	Model    string   `json:"model"`
	Schema   string   `json:"schema"`
	Loaded   bool     `json:"loaded"`
	Digest   string   `json:"digest,omitempty"`
	Features int      `json:"features,omitempty"`
	Backend  string   `json:"backend,omitempty"`
	Summary  string   `json:"summary"`
	Problems []string `json:"problems,omitempty"`
}

func (r *artifactReport) String() string {
	var sb strings.Builder
	model := r.Model
	if model == "" {
		model = "(remote backend)"
	}
	fmt.Fprintf(&sb, "Model:  %s\nSchema: %s\n", model, r.Schema)
	if r.Loaded {
		fmt.Fprintf(&sb, "OK: %s", r.Summary)
	} else {
		sb.WriteString("Not loadable:")
		for _, p := range r.Problems {
			sb.WriteString("\n  - " + p)
		}
	}
	return sb.String()
}

func (r *artifactReport) TableHeaders() []string {
	return []string{"MODEL", "SCHEMA", "LOADED", "FEATURES", "DIGEST"}
}

func (r *artifactReport) TableRows() [][]string {
	return [][]string{{r.Model, r.Schema, fmt.Sprint(r.Loaded), fmt.Sprint(r.Features), r.Digest}}
}

func reportFor(a Artifacts, snap *bioactivity.Snapshot, err error) *artifactReport {
	r := &artifactReport{Model: a.ModelPath(), Schema: a.SchemaPath()}
	if err != nil {
		var missing *bioactivity.MissingArtifactsError
		if stderrors.As(err, &missing) {
			r.Problems = missing.Messages()
		} else {
			r.Problems = []string{err.Error()}
		}
		return r
	}
	r.Loaded = true
	r.Digest = snap.Digest
	r.Features = snap.Schema.Len()
	r.Backend = snap.Model.Backend()
	r.Summary = a.Describe()
	return r
}

func newArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect or fetch the trained model and descriptor list",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Verify that both artifact files exist and load",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runArtifacts(cmd, false)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Download the artifacts from object storage, then load them",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runArtifacts(cmd, true)
			},
		},
	)
	return cmd
}

func runArtifacts(cmd *cobra.Command, sync bool) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cc.commandContext(cmd)
	defer cancel()

	store, err := cc.factories.Artifacts(ctx, cc, sync)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			cc.Logger.Warn("failed to close artifact store", logging.Err(cerr))
		}
	}()

	var snap *bioactivity.Snapshot
	if sync {
		snap, err = store.Sync(ctx)
	} else if err = store.Check(); err == nil {
		snap, err = store.Load(ctx)
	}
	report := reportFor(store, snap, err)
	if perr := PrintResult(cmd, report); perr != nil {
		return perr
	}
	return err
}

//Personal.AI order the ending
