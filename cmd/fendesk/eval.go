package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var (
	previewFlag bool
	timeoutFlag int64
	noRatesFlag bool
)

var evalCmd = &cobra.Command{
	Use:   "eval EXPR...",
	Short: "Evaluate each argument in order and print the results",
	Args:  cobra.MinimumNArgs(1),
	Run:   evalCommand,
}

func init() {
	evalCmd.Flags().BoolVar(&previewFlag, "preview", false, "Preview each argument instead of committing it")
	evalCmd.Flags().Int64Var(&timeoutFlag, "timeout", 0, "Time budget per argument in milliseconds (default from settings)")
	evalCmd.Flags().BoolVar(&noRatesFlag, "no-rates", false, "Don't load exchange rates")
}

func evalCommand(cmd *cobra.Command, args []string) {
	s := loadSettings()
	sess := openSession(s)
	defer sess.Close()

	if !noRatesFlag && !s.Rates.Disabled {
		sess.LoadRates(context.Background())
	}

	failed := false
	for _, expr := range args {
		var (
			out string
			err error
		)
		if previewFlag {
			timeout := sess.PreviewTimeout()
			if timeoutFlag > 0 {
				timeout = timeoutFlag
			}
			out, err = sess.Preview(expr, timeout)
		} else {
			timeout := sess.CommitTimeout()
			if timeoutFlag > 0 {
				timeout = timeoutFlag
			}
			out, err = sess.Commit(expr, timeout)
		}
		if err != nil {
			failed = true
			fmt.Fprintln(os.Stderr, color.Red.Sprint(err.Error()))
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
	if failed {
		sess.Close()
		os.Exit(1)
	}
}
