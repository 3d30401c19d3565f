package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DNAi-inc/DNHealth-sub001/internal/config"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/api"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/db"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/middleware"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/search"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/store"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/telemetry"
)

const serviceName = "fhir-search"

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "FHIR search over an in-memory resource corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("corpus", "", "Corpus files or directories, comma separated (overrides CORPUS_PATH)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if corpus, _ := cmd.Flags().GetString("corpus"); corpus != "" {
			return os.Setenv("CORPUS_PATH", corpus)
		}
		return nil
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(capabilitiesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FHIR search server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [query-string]",
		Short: "Run one search against the corpus and print the Bundle",
		Example: `  fhir-search query --type Patient 'name=smith&_sort=birthdate'
  fhir-search query --type Observation --corpus ./data 'code=http://loinc.org|8480-6&_include=Observation:subject'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _ := cmd.Flags().GetString("type")
			var raw string
			if len(args) == 1 {
				raw = args[0]
			}
			return runQuery(cmd.Context(), rt, raw)
		},
	}
	cmd.Flags().String("type", "", "Resource type to search")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func capabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the search feature support table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			eng, _ := newEngine(cfg, newLogger(cfg), nil, nil)

			fmt.Printf("%-24s %-12s %s\n", "FEATURE", "SUPPORT", "NOTE")
			for _, c := range eng.Capabilities() {
				fmt.Printf("%-24s %-12s %s\n", c.Feature, c.Support, c.Note)
			}
			return nil
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runQuery(ctx context.Context, resourceType, raw string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the Bundle
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	values, err := url.ParseQuery(raw)
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	req, err := search.ParseQuery(resourceType, values)
	if err != nil {
		return err
	}
	if req.Count == nil {
		req.Count = search.IntPtr(cfg.SearchDefaultCount)
	}

	src, err := openCorpus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()
	rs, err := src.Load(ctx)
	if err != nil {
		return err
	}
	snap := store.NewSnapshot(rs)
	eng, _ := newEngine(cfg, logger, nil, snap)

	res, err := eng.Execute(ctx, snap.AllResourcesOfType(resourceType), req, snap.Resolve, snap)
	if err != nil {
		return err
	}
	offset := 0
	if req.Offset != nil {
		offset = *req.Offset
	}
	bundle, err := fhir.NewSearchBundle(res.Matches, res.Included, search.Outcome(res.Issues), fhir.SearchBundleParams{
		ServerURL: cfg.ServerURL,
		BaseURL:   cfg.ServerURL + "/" + resourceType,
		QueryStr:  values.Encode(),
		Count:     *req.Count,
		Offset:    offset,
		Total:     res.Total,
		OmitTotal: req.Total == search.TotalNone,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	logger := newLogger(cfg)

	ctx := context.Background()

	// Tracing
	tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	metrics := telemetry.NewMetrics(nil)

	// Corpus
	src, err := openCorpus(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open corpus source")
	}
	defer src.Close()
	rs, err := src.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load corpus")
	}
	st := store.New()
	st.Replace(rs)
	metrics.SetCorpusCounts(st.Snapshot().Counts())

	eng, valueSets := newEngine(cfg, logger, metrics, st.Snapshot())

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.TracingMiddleware())
	e.Use(telemetry.MetricsMiddleware(metrics))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	fhirGroup := e.Group("/fhir", api.Format())
	handler := api.NewHandler(eng, st, api.Config{
		ServerURL:    cfg.ServerURL,
		BasePath:     "/fhir",
		DefaultCount: cfg.SearchDefaultCount,
		MaxCount:     cfg.SearchMaxCount,
	}, logger)
	handler.RegisterRoutes(fhirGroup)

	var pinger db.Pinger
	if src.pool != nil {
		pinger = src.pool
	}
	e.GET("/health", api.HealthHandler(st, pinger))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Int("resources", st.Snapshot().Len()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// SIGHUP reloads the corpus; SIGINT and SIGTERM shut down.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range sigs {
		if sig != syscall.SIGHUP {
			break
		}
		rs, err := src.Load(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("corpus reload failed, keeping the current snapshot")
			continue
		}
		snap := st.Replace(rs)
		loadValueSets(valueSets, snap, logger)
		metrics.SetCorpusCounts(snap.Counts())
		logger.Info().Int("resources", snap.Len()).Msg("corpus reloaded")
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
