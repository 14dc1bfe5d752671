package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fendesk/fendesk/invoke"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session's commands over HTTP",
	Args:  cobra.NoArgs,
	Run:   serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "127.0.0.1:7878", "Address to listen on")
}

func serveCommand(cmd *cobra.Command, args []string) {
	s := loadSettings()
	sess := openSession(s)
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if !s.Rates.Disabled {
		sess.RefreshRates(ctx)
		go sess.KeepRatesFresh(ctx, time.Minute)
	}

	bridge := invoke.NewServer(sess, invoke.WithSettings(s, settingsFile()), invoke.WithContext(ctx))
	srv := &http.Server{
		Addr:              addrFlag,
		Handler:           bridge.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Warn().Err(err).Msg("Unclean shutdown")
		}
	}()

	log.Info().Str("addr", addrFlag).Str("session", sess.ID()).Msg("Serving")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
