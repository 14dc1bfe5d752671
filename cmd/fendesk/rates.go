package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fendesk/fendesk"
	"github.com/fendesk/fendesk/rates"
)

var refreshFlag bool

var ratesCmd = &cobra.Command{
	Use:   "rates [CODE...]",
	Short: "Show today's exchange rates against USD",
	Run:   ratesCommand,
}

func init() {
	ratesCmd.Flags().BoolVar(&refreshFlag, "refresh", false, "Fetch the rates even if the cache is fresh")
}

func ratesCommand(cmd *cobra.Command, args []string) {
	s := loadSettings()
	if s.Rates.Disabled {
		log.Fatal().Msg("Exchange rates are disabled in the settings")
	}
	cache := fendesk.RateCache(s)
	ctx := context.Background()

	var (
		snap *rates.Snapshot
		ok   bool
	)
	if refreshFlag {
		fetched, err := cache.Fetcher.Fetch(ctx)
		if err != nil {
			log.Fatal().Err(err).Str("url", s.Rates.URL).Msg("Couldn't fetch exchange rates")
		}
		if cache.WriteBack {
			if err := cache.Persist(fetched); err != nil {
				log.Warn().Err(err).Msg("Failed to write exchange rate cache")
			}
		}
		snap, ok = fetched, true
	} else {
		snap, ok = cache.GetSnapshot(ctx)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, color.Red.Sprint("exchange rates are not available"))
		os.Exit(1)
	}

	codes := snap.Codes()
	if len(args) > 0 {
		codes = args
	}
	fmt.Fprintln(os.Stderr, color.Cyan.Sprintf("Rates from %s (1 %s buys)", snap.Date, rates.ReferenceCurrency))
	failed := false
	for _, code := range codes {
		r, err := snap.Rate(code)
		if err != nil {
			failed = true
			fmt.Fprintln(os.Stderr, color.Red.Sprint(err.Error()))
			continue
		}
		fmt.Printf("%s\t%v\n", strings.ToUpper(code), r)
	}
	if failed {
		os.Exit(1)
	}
}
