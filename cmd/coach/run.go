package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-coach/internal/log"
	"github.com/teslashibe/go-coach/pkg/app"
	"github.com/teslashibe/go-coach/pkg/state"
)

var (
	runRole       string
	runDifficulty string
	runMode       string
	runWeb        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one interview session in the terminal",
	Long: `run starts a session immediately with local audio and blocks until it
ends (Ctrl+C to stop). The conversation history and the final feedback are
printed on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Web.Enabled = runWeb

		opts := state.Options{
			Role:       cfg.Session.Role,
			Difficulty: cfg.Session.Difficulty,
			Mode:       cfg.Session.Mode,
		}
		if runRole != "" {
			opts.Role = runRole
		}
		if runDifficulty != "" {
			opts.Difficulty = runDifficulty
		}
		if runMode != "" {
			opts.Mode = runMode
		}

		a, err := app.New(cfg, app.WithLogger(log.L()))
		if err != nil {
			return err
		}
		if err := a.Init(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		runErr := a.RunSession(ctx, opts)
		a.Shutdown()

		printTranscript(cmd.OutOrStdout(), a.Controller().Store().Snapshot())
		return runErr
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runRole, "role", "", "interview role id (see `coach options`)")
	f.StringVar(&runDifficulty, "difficulty", "", "difficulty id")
	f.StringVar(&runMode, "mode", "", "interview type id")
	f.BoolVar(&runWeb, "web", false, "also serve the dashboard")
}

func printTranscript(w io.Writer, snap state.Snapshot) {
	if len(snap.History) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTranscript")
	fmt.Fprintln(w, "----------")
	for _, e := range snap.History {
		fmt.Fprintf(w, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Role, e.Text)
	}

	if f := snap.Feedback; f != nil {
		fmt.Fprintf(w, "\nScore: %g/10\n", f.Score)
		for _, s := range f.Strengths {
			fmt.Fprintf(w, "  + %s\n", s)
		}
		for _, s := range f.Improvements {
			fmt.Fprintf(w, "  - %s\n", s)
		}
		if f.Summary != "" {
			fmt.Fprintln(w, f.Summary)
		}
	}
}
