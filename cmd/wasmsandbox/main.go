// Command wasmsandbox calls the exports of a sandbox guest from the command
// line.
//
//	wasmsandbox log --guest sandbox.wasm "WASM Module Loaded"
//	wasmsandbox multiply --guest sandbox.wasm 3 4
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero/experimental/logging"

	"github.com/mcpdemo/wasmsandbox"
	"github.com/mcpdemo/wasmsandbox/internal/version"
)

const (
	envGuest    = "WASMSANDBOX_GUEST"
	envLogLevel = "WASMSANDBOX_LOG_LEVEL"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut io.Writer, stdErr logging.Writer) int {
	// Variables already in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stdErr, "error loading .env: %v\n", err)
		return 1
	}

	root := newRootCmd(stdOut, stdErr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stdErr, "error: %v\n", err)
		return 1
	}
	return 0
}

// options are the persistent flags shared by all commands.
type options struct {
	guest    string
	interp   bool
	trace    bool
	metrics  bool
	logLevel string

	stdOut io.Writer
	stdErr logging.Writer
}

func newRootCmd(stdOut io.Writer, stdErr logging.Writer) *cobra.Command {
	o := &options{stdOut: stdOut, stdErr: stdErr}

	root := &cobra.Command{
		Use:   "wasmsandbox",
		Short: "wasmsandbox CLI",
		Long: `wasmsandbox calls the log_action and multiply exports of a WebAssembly guest.

The guest is a wasip1 reactor, built for example with:
  GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o sandbox.wasm ./guest/wasip1`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	logLevel := os.Getenv(envLogLevel)
	if logLevel == "" {
		logLevel = zerolog.WarnLevel.String()
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.guest, "guest", os.Getenv(envGuest), "path to the guest wasm. Defaults to $"+envGuest)
	flags.BoolVar(&o.interp, "interp", false, "force interpreter")
	flags.BoolVar(&o.trace, "trace", false, "log host and exported function calls to stderr")
	flags.BoolVar(&o.metrics, "metrics", false, "print call metrics to stderr in Prometheus text format")
	flags.StringVar(&o.logLevel, "log-level", logLevel, "diagnostic log level (debug, info, warn, error). Defaults to $"+envLogLevel)

	root.AddCommand(newLogCmd(o), newMultiplyCmd(o), newVersionCmd(o))
	return root
}

func newLogCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "log <text>...",
		Short: "Log an action through the guest",
		Long: `Log an action through the guest.

Arguments are joined with a space, then passed to log_action, which writes
"Logged Action: <text>" to stdout.

Examples:
  wasmsandbox log --guest sandbox.wasm '{"type":"click","target":"A"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return o.withSandbox(cmd.Context(), func(ctx context.Context, s *wasmsandbox.Sandbox) error {
				return s.LogAction(ctx, text)
			})
		},
	}
}

func newMultiplyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "multiply <a> <b>",
		Short: "Multiply two 32-bit integers through the guest",
		Long: `Multiply two 32-bit integers through the guest.

The product wraps on overflow, e.g. 2147483647 * 2 = -2.

Examples:
  wasmsandbox multiply --guest sandbox.wasm 3 4
  # Negative numbers follow "--", so they aren't read as flags
  wasmsandbox multiply --guest sandbox.wasm -- -2 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseInt32(args[0])
			if err != nil {
				return err
			}
			b, err := parseInt32(args[1])
			if err != nil {
				return err
			}
			return o.withSandbox(cmd.Context(), func(ctx context.Context, s *wasmsandbox.Sandbox) error {
				product, err := s.Multiply(ctx, a, b)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(o.stdOut, product)
				return err
			})
		},
	}
}

func newVersionCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(o.stdOut, "%s (wazero %s)\n", version.GetVersion(), version.GetWazeroVersion())
			return err
		},
	}
}

// parseInt32 parses a base-10 signed 32-bit integer, rejecting values out of
// range instead of wrapping them.
func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid int32 %q: %w", s, err)
	}
	return int32(v), nil
}

// withSandbox instantiates the guest, calls fn and closes the guest.
func (o *options) withSandbox(ctx context.Context, fn func(context.Context, *wasmsandbox.Sandbox) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.guest == "" {
		return errors.New("missing path to wasm file: use --guest or $" + envGuest)
	}

	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: o.stdErr, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	guest, err := os.ReadFile(o.guest)
	if err != nil {
		return fmt.Errorf("error reading wasm binary: %w", err)
	}

	cfg := wasmsandbox.NewConfig().
		WithConsole(wasmsandbox.NewWriterConsole(o.stdOut)).
		WithStderr(o.stdErr).
		WithInterpreter(o.interp).
		WithLogger(logger)
	if o.trace {
		cfg = cfg.WithTrace(o.stdErr)
	}
	var reg *prometheus.Registry
	if o.metrics {
		reg = prometheus.NewRegistry()
		cfg = cfg.WithMetrics(reg)
	}

	s, err := wasmsandbox.Instantiate(ctx, guest, cfg)
	if err != nil {
		return err
	}
	logger.Debug().Str("guest", o.guest).Msg("instantiated")

	err = fn(ctx, s)
	if cerr := s.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil && reg != nil {
		err = writeMetrics(o.stdErr, reg)
	}
	return err
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("error gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
