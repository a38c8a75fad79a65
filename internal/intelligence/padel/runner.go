// Package padel drives the PaDEL-Descriptor command line tool and reads the
// descriptor table it writes.
package padel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

// OutputFile is the descriptor table written into the session directory.
const OutputFile = "descriptors.csv"

// stderrTail bounds how much tool output is kept in an error.
const stderrTail = 2048

// Options are the PaDEL switches used for a run.
type Options struct {
	Fingerprints     bool
	RetainOrder      bool
	RemoveSalt       bool
	StandardizeNitro bool
	// DescriptorTypes is an optional descriptors XML file.
	DescriptorTypes string
	Threads         int
	Timeout         time.Duration
}

// DefaultOptions computes fingerprints only, keeps input order, strips salts
// and standardizes nitro groups.
func DefaultOptions() Options {
	return Options{
		Fingerprints:     true,
		RetainOrder:      true,
		RemoveSalt:       true,
		StandardizeNitro: true,
		Timeout:          config.DefaultDescriptorTimeout,
	}
}

// CommandFunc builds the process for a tool invocation.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner invokes PaDEL-Descriptor through the JVM.
type Runner struct {
	java     string
	jar      string
	javaOpts []string
	opts     Options
	logger   logging.Logger
	command  CommandFunc
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithCommand replaces process creation, mainly for tests.
func WithCommand(fn CommandFunc) RunnerOption {
	return func(r *Runner) { r.command = fn }
}

// WithOptions overrides the tool switches.
func WithOptions(o Options) RunnerOption {
	return func(r *Runner) { r.opts = o }
}

// NewRunner builds a Runner from the descriptor config section.
func NewRunner(cfg config.DescriptorConfig, logger logging.Logger, opts ...RunnerOption) *Runner {
	o := DefaultOptions()
	o.DescriptorTypes = cfg.DescriptorTypes
	o.Threads = cfg.Threads
	if cfg.Timeout > 0 {
		o.Timeout = cfg.Timeout
	}
	r := &Runner{
		java:     cfg.Java,
		jar:      cfg.JarPath,
		javaOpts: cfg.JavaOptions,
		opts:     o,
		logger:   logger.Named("padel"),
		command:  exec.CommandContext,
	}
	if r.java == "" {
		r.java = config.DefaultJava
	}
	if r.jar == "" {
		r.jar = config.DefaultPaDELJar
	}
	r.jar = absPath(r.jar)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// absPath anchors p to the process working directory. The tool runs inside
// the session directory, so relative paths would resolve there instead.
func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Args returns the JVM argument list for a run over molDir writing outFile.
func (r *Runner) Args(molDir, outFile string) []string {
	args := append([]string{}, r.javaOpts...)
	args = append(args, "-Djava.awt.headless=true", "-jar", r.jar, "-dir", molDir, "-file", outFile)
	if r.opts.Fingerprints {
		args = append(args, "-fingerprints")
	}
	if r.opts.RetainOrder {
		args = append(args, "-retainorder")
	}
	if r.opts.RemoveSalt {
		args = append(args, "-removesalt")
	}
	if r.opts.StandardizeNitro {
		args = append(args, "-standardizenitro")
	}
	if r.opts.DescriptorTypes != "" {
		args = append(args, "-descriptortypes", r.opts.DescriptorTypes)
	}
	if r.opts.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(r.opts.Threads))
	}
	return args
}

// Check verifies that the JVM is on PATH and the jar exists.
func (r *Runner) Check() error {
	if _, err := exec.LookPath(r.java); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDescribe, "java runtime not found").WithDetail(r.java)
	}
	if _, err := os.Stat(r.jar); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDescribe, "PaDEL-Descriptor jar not found").WithDetail(r.jar)
	}
	return nil
}

// Generate runs the tool over molDir and waits for outFile to be written.
func (r *Runner) Generate(ctx context.Context, molDir, outFile string) error {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	molDir, outFile = absPath(molDir), absPath(outFile)
	args := r.Args(molDir, outFile)
	cmd := r.command(ctx, r.java, args...)
	cmd.Dir = molDir
	var stderr, stdout bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stdout
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		return r.runError(ctx, err, &stderr)
	}
	r.logger.Debug("descriptor generation finished",
		logging.String("dir", molDir),
		logging.Duration("elapsed", elapsed))

	fi, err := os.Stat(outFile)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDescribe, "descriptor generator produced no output").WithDetail(outFile)
	}
	if fi.Size() == 0 {
		return apperrors.New(apperrors.ErrCodeDescribe, "descriptor generator produced an empty table").WithDetail(outFile)
	}
	return nil
}

func (r *Runner) runError(ctx context.Context, err error, stderr *bytes.Buffer) error {
	var execErr *exec.Error
	switch {
	case errors.As(err, &execErr):
		return apperrors.Wrap(err, apperrors.ErrCodeDescribe, "java runtime not found").WithDetail(r.java)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeDescribe, "descriptor generation timed out").
			WithDetail(fmt.Sprintf("after %s", r.opts.Timeout))
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeDescribe, "descriptor generation cancelled")
	}
	msg := stderr.Bytes()
	if len(msg) > stderrTail {
		msg = msg[len(msg)-stderrTail:]
	}
	r.logger.Warn("descriptor generator failed", logging.Err(err), logging.String("stderr", string(msg)))
	return apperrors.Wrap(err, apperrors.ErrCodeDescribe, apperrors.DefaultMessageForCode(apperrors.ErrCodeDescribe)).
		WithDetail(string(bytes.TrimSpace(msg)))
}

//Personal.AI order the ending
