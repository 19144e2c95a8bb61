package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := &configFlags{}
	code := 0

	rootCmd := &cobra.Command{
		Use:   "compsync",
		Short: "Sync a component from an upstream repository into a downstream repository",
		Long: "Rebase the upstream tracking branch onto the latest release tag, force push it to the fork remote, " +
			"replace the component directory in the downstream repository with the rebased one, then commit and push.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			pr := newPrinter(stdout, stderr, cfg.NoColor)
			log := newLogger(stderr, cfg)
			w := newWorkflow(cfg, &execRunner{log: log}, log, pr)

			res, err := w.Run(cmd.Context())
			if err != nil {
				pr.fatal(err)
				code = exitCode(err)
				return nil
			}
			pr.result(res)
			return nil
		},
	}

	flags.register(rootCmd.PersistentFlags())

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the state of both working trees as JSON",
		Long:  "Read the branch, commit and tags of the upstream and downstream working trees without fetching or changing anything.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			log := newLogger(stderr, cfg)
			status, err := inspect(cmd.Context(), cfg, &execRunner{log: log}, stderr, cfg.Verbose)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		},
	}

	rootCmd.AddCommand(statusCmd)
	rootCmd.SetArgs(args[1:])
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		newPrinter(stdout, stderr, flags.cfg.NoColor).fatal(err)
		return exitCode(err)
	}
	return code
}

// newLogger returns the diagnostic logger. Subprocesses and steps are only
// logged with --verbose.
func newLogger(w io.Writer, cfg Config) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
