package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-coach/internal/config"
	"github.com/teslashibe/go-coach/internal/log"
)

var (
	cfgFile  string
	logLevel string
	apiKey   string
	provider string
	backend  string
)

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "Voice interview coach",
	Long: `coach runs mock interviews over a realtime voice session.

Microphone audio streams to Gemini Live, the interviewer's speech is played
back without gaps, and a dashboard shows the question, the conversation
history and the feedback the model reports through its update_ui tool.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./coach.yaml or ~/.coach/coach.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&apiKey, "api-key", "", "Gemini API key (default $GOOGLE_API_KEY or $GEMINI_API_KEY)")
	pf.StringVar(&provider, "provider", "", "voice provider: genai, gemini-ws")
	pf.StringVar(&backend, "audio", "", "audio backend: auto, exec, mock, remote")

	rootCmd.AddCommand(serveCmd, runCmd, optionsCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies persistent flag overrides,
// then initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if apiKey != "" {
		cfg.Voice.APIKey = apiKey
	}
	if provider != "" {
		cfg.Voice.Provider = provider
	}
	if backend != "" {
		cfg.Audio.Backend = backend
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
