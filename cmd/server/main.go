package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/ehr-auth-broker/auth"
	"github.com/jrsteele09/ehr-auth-broker/authflow"
	"github.com/jrsteele09/ehr-auth-broker/clients"
	"github.com/jrsteele09/ehr-auth-broker/clients/buntrepo"
	"github.com/jrsteele09/ehr-auth-broker/internal/config"
	"github.com/jrsteele09/ehr-auth-broker/internal/metrics"
	"github.com/jrsteele09/ehr-auth-broker/recordstore"
	"github.com/jrsteele09/ehr-auth-broker/server"
	"github.com/jrsteele09/ehr-auth-broker/sessions"
	"github.com/jrsteele09/ehr-auth-broker/upstream"
)

var version = "dev"

func main() {
	var (
		configFile string
		envFile    string
	)

	root := &cobra.Command{
		Use:           "ehr-auth-broker",
		Short:         "OAuth 2.0 + PKCE broker for delegated access to clinical records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (defaults to $CONFIG_FILE)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			setupLogging(c)
			return run(c)
		},
	}

	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "List the clinical records stored in the persistence directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			records, err := recordstore.List(c.GetDataFolder())
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%-40s %10d  %s\n", r.DatabaseID, r.Size, r.ModifiedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, recordsCmd, versionCmd)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
}

// loadConfig only overrides CONFIG_FILE when --config was given, so a value from .env still applies.
func loadConfig(file string) (config.Config, error) {
	var options []config.Option
	if file != "" {
		options = append(options, config.WithFile(file))
	}
	return config.New(options...)
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	clientRepo, err := buntrepo.New(c.GetClientsDBPath())
	if err != nil {
		return err
	}
	clientRegistry := clients.NewRegistry(clientRepo)
	defer func() {
		if err := clientRegistry.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close client registry")
		}
	}()

	m, err := metrics.New(server.KnownPaths()...)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	sessionRegistry := sessions.NewRegistry(m)
	defer sessionRegistry.CloseAll()

	repos := auth.Repos{
		Clients:      clientRegistry,
		Sessions:     sessionRegistry,
		Materializer: sessions.NewMaterializer(c, m),
	}

	httpClient := &http.Client{Timeout: c.GetDiscoveryTimeout()}
	discoverer := upstream.NewDiscoverer(c.GetDiscoveryTimeout(), c.GetDiscoveryCacheTTL(), httpClient)
	launcher := upstream.NewLauncher(c, discoverer, c.GetAcquisitionFlowTTL(), httpClient)

	srv, err := server.New(c, repos, launcher, server.WithMetrics(m))
	if err != nil {
		return err
	}

	sweeper := authflow.NewSweeper(c.GetSweepInterval(), srv.Sweepables(), authflow.WithSweepObserver(m.RecordSwept))
	sweeper.Start()
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
