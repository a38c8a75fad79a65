// Package cli implements achectl, the command-line front end of the
// predictor. Local commands run the pipeline in-process; remote commands go
// through pkg/client.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/client"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo holds version information injected at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	SDK       string `json:"sdk"`
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("achectl %s (commit: %s, built: %s, sdk: %s)", b.Version, b.Commit, b.BuildDate, b.SDK)
}

type cliContextKey struct{}

// Output formats accepted by --output.
const (
	OutputText  = "text"
	OutputJSON  = "json"
	OutputTable = "table"
)

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
	ServerAddr   string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	ConfigPath   string
	Logger       logging.Logger
	Client       *client.Client
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration

	factories Factories
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	return newRootCommand(DefaultFactories())
}

func newRootCommand(f Factories) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "achectl",
		Short: "Predict acetylcholinesterase pIC50 for SMILES files",
		Long: "achectl scores molecules against the AChE bioactivity model.\n" +
			"It runs the descriptor and prediction pipeline locally, or submits\n" +
			"files to a remote API server and tracks the resulting jobs.",
		Version: BuildInfo{Version, GitCommit, BuildDate, client.Version}.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, f)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: search ./configs, ~/.ache, /etc/ache)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.OutputFormat, "output", OutputText, "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "overall command timeout, 0 disables it")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address (default: client.server from config)")

	cmd.AddCommand(
		newPredictCmd(),
		newSubmitCmd(),
		newStatusCmd(),
		newRunsCmd(),
		newArtifactsCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, f Factories) error {
	switch strings.ToLower(opts.OutputFormat) {
	case OutputText, OutputJSON, OutputTable:
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown output format %q", opts.OutputFormat)
	}

	cfg, path, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "config initialization failed")
	}

	logger, err := initLogger(cmd.ErrOrStderr(), opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "logger initialization failed")
	}
	if path != "" {
		logger.Debug("config loaded", logging.String("path", path))
	}

	apiClient, err := initClient(cfg, opts)
	if err != nil {
		logger.Warn("API client initialization failed, remote commands will not work", logging.Err(err))
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		ConfigPath:   path,
		Logger:       logger,
		Client:       apiClient,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
		factories:    f,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initLogger writes console logs to stderr so stdout stays parseable.
func initLogger(w io.Writer, opts *RootOptions) (logging.Logger, error) {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	if w == os.Stderr {
		return logging.NewLogger(logging.LogConfig{
			Level:            level,
			Format:           "console",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		})
	}
	return logging.NewWriterLogger(w, level), nil
}

func initClient(cfg *config.Config, opts *RootOptions) (*client.Client, error) {
	addr := opts.ServerAddr
	if addr == "" {
		addr = cfg.Client.Server
	}
	if addr == "" {
		addr = config.DefaultClientServer
	}
	clientOpts := []client.Option{client.WithUserAgent("achectl/" + Version)}
	if cfg.Client.Token != "" {
		clientOpts = append(clientOpts, client.WithToken(cfg.Client.Token))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(opts.Timeout))
	}
	return client.NewClient(addr, clientOpts...)
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// commandContext applies --timeout to the command's context.
func (c *CLIContext) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(cmd.Context(), c.Timeout)
	}
	return context.WithCancel(cmd.Context())
}

func (c *CLIContext) remote() (*client.Client, error) {
	if c.Client == nil {
		return nil, errors.New(errors.ErrCodeValidation, "no usable API server address; set --server or client.server")
	}
	return c.Client, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// tableProvider is implemented by results that render as a table.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}
	switch cliCtx.OutputFormat {
	case OutputJSON:
		return printJSON(cmd, data)
	case OutputTable:
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	case tableProvider:
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(v.TableHeaders(), v.TableRows()))
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

func printTable(cmd *cobra.Command, data interface{}) error {
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes err to stderr. Pipeline failures list every diagnostic.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	w := cmd.ErrOrStderr()
	if lines := diagnostics(err); len(lines) > 0 {
		for _, l := range lines {
			fmt.Fprintf(w, "Error: %s\n", l)
		}
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			if i == len(headers)-1 {
				sb.WriteString(val)
			} else {
				sb.WriteString(padRight(val, colWidths[i]))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

//Personal.AI order the ending
