package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	wsfeed "github.com/clearwave/callsig/internal/adapter/driven/feed/ws"
	"github.com/clearwave/callsig/internal/adapter/driven/notify"
	"github.com/clearwave/callsig/internal/adapter/driven/registry/memory"
	"github.com/clearwave/callsig/internal/adapter/driven/registry/postgres"
	handler "github.com/clearwave/callsig/internal/adapter/driving/http"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/service"
)

var rootCmd = &cobra.Command{
	Use:   "callsig",
	Short: "Call signaling and session coordination client",
	Long: "callsig runs the signaling client for one user: it drives 1:1 and " +
		"group call state through the shared call registry and exposes the " +
		"operations over a local HTTP control surface.",
	Run: run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("user", "", "address of the local user (required)")
	flags.StringSlice("groups", nil, "group ids this user belongs to")
	flags.String("listen", ":8080", "control surface listen address")
	flags.String("registry-dsn", "", "postgres DSN for the call registry; empty runs the in-memory registry")
	flags.String("feed-url", "", "websocket URL of the change feed; required with a postgres registry")
	flags.String("notify-url", "", "notification dispatcher endpoint; empty disables alerts")
	flags.Duration("poll-interval", 3*time.Second, "reconciliation poll cadence")
	flags.Bool("verbose", false, "debug logging")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("callsig")
	viper.AutomaticEnv()
}

func run(cmd *cobra.Command, args []string) {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Logger()
	if viper.GetBool("verbose") {
		l = l.Level(zerolog.DebugLevel)
	} else {
		l = l.Level(zerolog.InfoLevel)
	}
	zlog.Logger = l

	user := viper.GetString("user")
	if user == "" {
		l.Fatal().Msg("--user is required")
	}

	var (
		registry port.Registry
		feed     port.ChangeFeed
	)
	if dsn := viper.GetString("registry-dsn"); dsn != "" {
		pg, err := postgres.New(dsn)
		if err != nil {
			l.Fatal().Err(err).Msg("Failed to open call registry")
		}
		feedURL := viper.GetString("feed-url")
		if feedURL == "" {
			l.Fatal().Msg("--feed-url is required with a postgres registry")
		}
		registry = pg
		feed = wsfeed.NewFeed(feedURL)
	} else {
		mem := memory.NewRegistry()
		registry = mem
		feed = mem
		l.Info().Msg("Using in-memory call registry")
	}

	var notifier port.Notifier
	if url := viper.GetString("notify-url"); url != "" {
		notifier = notify.NewDispatcher(url)
	}

	direct := service.NewDirectCallService(user, registry, feed, notifier)
	groups := service.NewGroupCallCoordinator(user, viper.GetStringSlice("groups"), registry, feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := direct.Run(ctx); err != nil {
			l.Error().Err(err).Msg("Direct call feed stopped")
		}
	}()
	go func() {
		if err := groups.Run(ctx); err != nil {
			l.Error().Err(err).Msg("Group call feed stopped")
		}
	}()

	interval := viper.GetDuration("poll-interval")
	go service.NewPoller(interval, direct.Reconcile).Run(ctx)
	go service.NewPoller(interval, groups.Reconcile).Run(ctx)

	h := handler.NewHandler(direct, groups)
	srv := &http.Server{
		Addr:    viper.GetString("listen"),
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", srv.Addr).Str("user", user).Msg("Starting control surface")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start control surface")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Control surface forced to shutdown")
	}
	l.Info().Msg("Client exited")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
