package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fendesk/fendesk/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := toml.NewEncoder(os.Stdout).Encode(loadSettings()); err != nil {
			log.Fatal().Err(err).Msg("Couldn't print settings")
		}
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set ID VALUE",
	Short: "Change one setting and save the file",
	Long:  "Change one setting and save the file. IDs:\n  " + strings.Join(config.IDs(), "\n  "),
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path := settingsFile()
		s := loadSettings()
		if err := s.Set(args[0], args[1]); err != nil {
			log.Fatal().Err(err).Msg("Couldn't change setting")
		}
		if err := config.Save(path, s); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Couldn't save settings")
		}
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settingsFile())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
