package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/types/common"
)

// runRow is one line of the runs listing, local or remote.
type runRow struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Input     string    `json:"input_name,omitempty"`
	Status    string    `json:"status"`
	Molecules int       `json:"molecule_count"`
	Coverage  float64   `json:"coverage"`
	Error     string    `json:"error_message,omitempty"`
}

type runList struct {
	Items    []runRow `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Origin   string   `json:"origin"`
}

func (l *runList) TableHeaders() []string {
	return []string{"ID", "CREATED", "SOURCE", "STATUS", "MOLECULES", "COVERAGE", "INPUT"}
}

func (l *runList) TableRows() [][]string {
	rows := make([][]string, 0, len(l.Items))
	for _, r := range l.Items {
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			r.Status,
			strconv.Itoa(r.Molecules),
			fmt.Sprintf("%.0f%%", r.Coverage*100),
			r.Input,
		})
	}
	return rows
}

func (l *runList) String() string {
	if len(l.Items) == 0 {
		return fmt.Sprintf("No runs in %s.", l.Origin)
	}
	return FormatTable(l.TableHeaders(), l.TableRows()) +
		fmt.Sprintf("%d of %d runs (%s, page %d)", len(l.Items), l.Total, l.Origin, l.Page)
}

func newRunsCmd() *cobra.Command {
	var (
		remote bool
		page   int
		size   int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past prediction runs",
		Long:  "Lists runs from the local ledger, or from the API server with --remote.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cc.commandContext(cmd)
			defer cancel()
			p := common.Pagination{Page: page, PageSize: size}.Normalize()

			if remote {
				api, err := cc.remote()
				if err != nil {
					return err
				}
				res, err := api.ListRuns(ctx, p.Page, p.PageSize)
				if err != nil {
					return err
				}
				out := &runList{Total: res.Total, Page: res.Page, PageSize: res.PageSize, Origin: api.BaseURL()}
				for _, r := range res.Items {
					out.Items = append(out.Items, runRow{r.ID, r.CreatedAt, r.Source, r.InputName, r.Status, r.MoleculeCount, r.Coverage, r.ErrorMessage})
				}
				return PrintResult(cmd, out)
			}

			history, err := cc.factories.History(ctx, cc)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := history.Close(); cerr != nil {
					cc.Logger.Warn("failed to close ledger", logging.Err(cerr))
				}
			}()
			runs, total, err := history.List(ctx, p)
			if err != nil {
				return err
			}
			out := &runList{Total: total, Page: p.Page, PageSize: p.PageSize, Origin: "local ledger"}
			for _, r := range runs {
				out.Items = append(out.Items, runRow{r.ID, r.CreatedAt, string(r.Source), r.InputName, string(r.Status), r.MoleculeCount, r.Coverage, r.ErrorMessage})
			}
			return PrintResult(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list runs stored on the API server")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", common.DefaultPageSize, "page size")
	return cmd
}

//Personal.AI order the ending
