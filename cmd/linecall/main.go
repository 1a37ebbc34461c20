package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/alicas/linecall-agent/internal/backend"
	"github.com/alicas/linecall-agent/internal/config"
	"github.com/alicas/linecall-agent/internal/logging"
	"github.com/alicas/linecall-agent/internal/render"
	"github.com/alicas/linecall-agent/internal/workflow"
)

// cliFlags holds the flags shared by every subcommand.
type cliFlags struct {
	backendURL  string
	mediaPrefix string
	timeout     time.Duration
	logLevel    string
	logFormat   string

	mode       string
	shotType   string
	jsonOutput bool
	noProgress bool
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "linecall",
		Short: "Badminton line-call analysis from the command line",
		Long: `linecall uploads a rally video to the ALiCaS-B analysis backend, waits for
processing to finish and prints the IN/OUT decision timeline.

Defaults come from the agent configuration (LINECALL_* environment variables
or config.yaml); flags override them.

Examples:
  linecall analyze rally.mp4
  linecall analyze smash.mov --mode doubles --shot-type rally
  linecall analyze serve.mp4 --backend http://gpu-box:8000 --json
  linecall ping`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.backendURL, "backend", "", "Analysis backend base URL (default from config)")
	pf.StringVar(&flags.mediaPrefix, "media-prefix", "", "Prefix for processed video URLs (default {backend}/outputs)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Per-request backend timeout (default from config)")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")

	analyze := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Upload a video and print its line calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, flags, args[0])
		},
	}
	analyze.Flags().StringVarP(&flags.mode, "mode", "m", string(workflow.ModeSingles), "Match mode (singles, doubles)")
	analyze.Flags().StringVarP(&flags.shotType, "shot-type", "s", string(workflow.ShotServe), "Shot type (serve, rally)")
	analyze.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the result as JSON")
	analyze.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Do not show the upload progress bar")

	ping := &cobra.Command{
		Use:   "ping",
		Short: "Check that the analysis backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, flags)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linecall %s (commit %s, built %s)\n",
				config.Version, config.GitCommit, config.BuildTime)
		},
	}

	root.AddCommand(analyze, ping, version)
	return root
}

// newClient resolves the backend settings: flags first, then the agent
// configuration.
func newClient(cmd *cobra.Command, flags *cliFlags) (*backend.HTTPClient, *slog.Logger, error) {
	logger := logging.New(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)

	baseURL, prefix, timeout := flags.backendURL, flags.mediaPrefix, flags.timeout
	if baseURL == "" || timeout == 0 {
		cfg, err := config.New()
		if err != nil {
			return nil, nil, err
		}
		if baseURL == "" {
			baseURL = cfg.BackendURL()
			if prefix == "" {
				prefix = cfg.MediaPrefix()
			}
		}
		if timeout == 0 {
			timeout = cfg.BackendTimeout()
		}
	}

	client := backend.NewHTTPClient(baseURL, prefix, timeout, logging.WithComponent(logger, "backend"))
	return client, logger, nil
}

func runPing(cmd *cobra.Command, flags *cliFlags) error {
	client, _, err := newClient(cmd, flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	msg, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("backend %s: %w", client.BaseURL(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", client.BaseURL(), msg)
	return nil
}

func runAnalyze(cmd *cobra.Command, flags *cliFlags, path string) error {
	mode, err := workflow.ParseMode(flags.mode)
	if err != nil {
		return err
	}
	shot, err := workflow.ParseShotType(flags.shotType)
	if err != nil {
		return err
	}

	local, err := workflow.NewLocalFile(path)
	if err != nil {
		return err
	}

	client, logger, err := newClient(cmd, flags)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	var file workflow.File = local
	if !flags.noProgress && !flags.jsonOutput {
		file = &progressFile{File: local, out: stderr}
	}

	ctrl := workflow.NewController(workflow.Config{
		Backend: client,
		Options: workflow.Options{Mode: mode, ShotType: shot},
		Logger:  logging.WithComponent(logger, "workflow"),
	})
	ctrl.OnChange(statusPrinter(stderr))
	ctrl.SelectFile(file)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runErr := ctrl.Run(ctx)

	view := render.NewView(ctrl.Snapshot())
	out := cmd.OutOrStdout()
	if flags.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return err
		}
	} else if err := render.Text(out, view); err != nil {
		return err
	}
	return runErr
}

// statusPrinter writes each new status text once.
func statusPrinter(w io.Writer) func(workflow.Snapshot) {
	var last workflow.Status
	return func(snap workflow.Snapshot) {
		st := snap.State.Status()
		if st == last {
			return
		}
		last = st
		switch st {
		case workflow.StatusUploading:
			fmt.Fprintln(w, render.TextUploading)
		case workflow.StatusProcessing:
			fmt.Fprintln(w, render.TextProcessing)
		}
	}
}
