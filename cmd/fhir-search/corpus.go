package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/config"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/db"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/search"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/store"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/telemetry"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/terminology"
)

// corpusSource loads resources from the configured files and, when
// DATABASE_URL is set, from Postgres. File resources come first so a
// database row with the same key wins.
type corpusSource struct {
	paths  []string
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

func openCorpus(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*corpusSource, error) {
	src := &corpusSource{paths: cfg.CorpusPaths(), table: cfg.ResourceTable, logger: logger}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
			AppName:     serviceName,
		})
		if err != nil {
			return nil, err
		}
		src.pool = pool
		logger.Info().Msg("connected to database")
	}
	return src, nil
}

func (s *corpusSource) Load(ctx context.Context) ([]*fhir.Resource, error) {
	var out []*fhir.Resource
	if len(s.paths) > 0 {
		rs, err := store.LoadFiles(ctx, s.logger, s.paths...)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	if s.pool != nil {
		rs, err := store.LoadPostgres(ctx, s.pool, s.table, s.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

func (s *corpusSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// newEngine wires the engine's collaborators. ValueSet resources found in
// snap seed the in-memory terminology, which is returned so a reload can
// refresh it.
func newEngine(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics, snap *store.Snapshot) (*search.Engine, *terminology.Memory) {
	mem := terminology.NewMemory()
	if snap != nil {
		loadValueSets(mem, snap, logger)
	}
	chain := terminology.Chain{mem}
	if cfg.TerminologyURL != "" {
		rc := terminology.DefaultRemoteConfig(cfg.TerminologyURL)
		rc.Timeout = cfg.TerminologyTimeout
		remote, err := terminology.NewRemote(rc, &http.Client{Timeout: rc.Timeout}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("remote terminology disabled")
		} else {
			chain = append(chain, remote)
		}
	}

	opts := []search.Option{
		search.WithLogger(logger),
		search.WithTerminology(chain),
		search.WithExpressionEvaluator(fhir.NewFHIRPathEvaluator()),
		search.WithParallelism(cfg.SearchParallelism),
		search.WithReverseChainScanLimit(cfg.ReverseChainScanLimit),
	}
	if metrics != nil {
		opts = append(opts, search.WithMetrics(metrics))
	}
	if cfg.StrictCapabilities {
		opts = append(opts, search.WithStrictCapabilities())
	}
	return search.NewEngine(opts...), mem
}

// loadValueSets replaces the in-memory value sets with the snapshot's, so a
// reload also forgets sets removed from the corpus.
func loadValueSets(mem *terminology.Memory, snap *store.Snapshot, logger zerolog.Logger) {
	for _, err := range mem.Reload(snap.AllResourcesOfType("ValueSet")) {
		logger.Warn().Err(err).Msg("skipping value set")
	}
	logger.Debug().Int("value_sets", mem.Len()).Msg("terminology loaded")
}

