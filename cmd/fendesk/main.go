package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fendesk/fendesk"
	"github.com/fendesk/fendesk/config"
	"github.com/fendesk/fendesk/session"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "fendesk",
	Short: "An interactive calculator with currencies",
	Long: "fendesk evaluates expressions as you type them. Enter commits a line and keeps\n" +
		"its assignments; a line ending in ? only previews its result.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'warn'\n", logLevel)
			level = zerolog.WarnLevel
		}
		zerolog.SetGlobalLevel(level)
	},
	Run: replCommand,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default <config dir>/fendesk/settings.toml)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(serveCmd)
}

func settingsFile() string {
	if configPath != "" {
		return configPath
	}
	path, err := config.DefaultPath()
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't locate the settings file")
	}
	return path
}

func loadSettings() config.Settings {
	path := settingsFile()
	s, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Couldn't load settings")
	}
	return s
}

func openSession(s config.Settings) *session.Session {
	sess, err := fendesk.Open(s)
	if err != nil {
		log.Fatal().Err(err).Msg("Couldn't open session")
	}
	return sess
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
