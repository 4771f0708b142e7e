// Package control wires the repair agent together and drives the cycle
// loop: one full sequential pass over all indexers per interval, with the
// repair state loaded once at cycle start and saved once at cycle end.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rotatarr/rotatarr/internal/core/config"
	"github.com/rotatarr/rotatarr/internal/core/domain"
	"github.com/rotatarr/rotatarr/internal/core/engine"
	"github.com/rotatarr/rotatarr/internal/core/retry"
	"github.com/rotatarr/rotatarr/internal/health"
	"github.com/rotatarr/rotatarr/internal/infra/prowlarr"
	"github.com/rotatarr/rotatarr/internal/infra/state"
	"github.com/rotatarr/rotatarr/internal/infra/state/file"
	redisstate "github.com/rotatarr/rotatarr/internal/infra/state/redis"
	"github.com/rotatarr/rotatarr/internal/metrics"
)

// Aggregator is the full aggregator surface the runner needs: the
// engine's slice plus the listing endpoints that feed a cycle.
type Aggregator interface {
	engine.Aggregator
	ListIndexers(ctx context.Context) ([]domain.Indexer, error)
	ListStatuses(ctx context.Context) ([]domain.IndexerStatus, error)
}

// Runner owns one repair agent instance.
type Runner struct {
	cfg    *config.Config
	agg    Aggregator
	store  state.Repository
	eng    *engine.Engine
	health *health.Server
	log    *slog.Logger

	mu         sync.RWMutex
	lastReport *engine.Report
}

// NewRunner builds the runner with production collaborators: the
// aggregator HTTP client and a Redis- or file-backed state store.
func NewRunner(cfg *config.Config) (*Runner, error) {
	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 30*time.Second)

	var store state.Repository
	if cfg.RedisURL != "" {
		rs, err := redisstate.NewStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis state store: %w", err)
		}
		store = rs
		slog.Info("Using Redis state store")
	} else {
		store = file.NewStore(cfg.StateFile)
		slog.Info("Using file state store", "path", cfg.StateFile)
	}

	return newRunner(cfg, client, store), nil
}

func newRunner(cfg *config.Config, agg Aggregator, store state.Repository) *Runner {
	eng := engine.New(agg, engine.Config{
		TagToTry:               cfg.TagToTry,
		TagForce:               cfg.TagForce,
		ApplyTagSaveBeforeTest: cfg.ApplyTagSaveBeforeTest,
		TestAsUI:               cfg.TestAsUI,
		DryRun:                 cfg.DryRun,
		MaxAttempts:            cfg.MaxAttempts,
		Cooldown:               cfg.Cooldown(),
		ForceTest:              cfg.ForceTestIndexers,
	}, retry.New(cfg.TestRetries, cfg.TestRetryDelay()))

	r := &Runner{
		cfg:   cfg,
		agg:   agg,
		store: store,
		eng:   eng,
		log:   slog.Default(),
	}
	r.health = health.NewServer(r.LastReport, cfg.MetricsPort)
	return r
}

// LastReport returns the most recent cycle report, nil before the first.
func (r *Runner) LastReport() *engine.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReport
}

// RunCycle performs one full repair pass: every indexer is fully decided
// before the next begins. An unreachable aggregator aborts the cycle
// without touching the persisted state.
func (r *Runner) RunCycle(ctx context.Context) (*engine.Report, error) {
	start := time.Now()

	states, err := r.store.Load(ctx)
	if err != nil {
		// Losing cooldown memory is recoverable; never abort for it.
		r.log.Warn("Failed to load repair state, starting empty", "error", err)
		states = make(map[string]domain.RepairState)
	}

	indexers, err := r.agg.ListIndexers(ctx)
	if err != nil {
		return nil, fmt.Errorf("cycle aborted: %w", err)
	}
	statuses, err := r.agg.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("cycle aborted: %w", err)
	}

	failing := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		if s.Failing() {
			failing[s.IndexerID] = true
		}
	}

	r.log.Info("Starting repair cycle",
		"indexers", len(indexers), "failing", len(failing), "dry_run", r.cfg.DryRun)

	report := engine.NewReport(r.cfg.DryRun)
	for i := range indexers {
		ix := &indexers[i]
		if ix.ID == 0 {
			r.log.Debug("Indexer missing id, skipping", "name", ix.Name)
			continue
		}
		key := strconv.Itoa(ix.ID)

		// Status records are authoritative; definition heuristics catch
		// indexers the status endpoint has no failure for.
		broken := failing[ix.ID] || ix.AppearsBroken()
		outcome, newState := r.eng.Decide(ctx, ix, broken, states[key])
		states[key] = newState
		report.Add(outcome)
		metrics.IndexersChecked.WithLabelValues(outcome.State.String()).Inc()
	}

	if err := r.store.Save(ctx, states); err != nil {
		// Remote aggregator state stays authoritative; divergence heals
		// on the next successful save.
		r.log.Error("Failed to save repair state", "error", err)
	}

	report.Duration = time.Since(start)
	r.setLastReport(report)
	r.observe(report, states)

	r.log.Info("Cycle complete",
		"run_id", report.RunID, "summary", report.Summary(),
		"duration", report.Duration, "dry_run", r.cfg.DryRun)
	return report, nil
}

// Run drives the agent: a single cycle in one-shot mode, otherwise an
// initial cycle followed by one per check interval until the context is
// cancelled. The health/metrics endpoint is served for the duration.
func (r *Runner) Run(ctx context.Context) error {
	go func() {
		if err := r.health.Start(); err != nil {
			r.log.Error("Health server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.health.Stop(shutdownCtx); err != nil {
			r.log.Warn("Failed to stop health server", "error", err)
		}
	}()

	if r.cfg.OneShot {
		r.log.Info("One-shot mode, running a single cycle")
		_, err := r.RunCycle(ctx)
		return err
	}

	if _, err := r.RunCycle(ctx); err != nil {
		r.log.Error("Cycle failed", "error", err)
	}

	ticker := time.NewTicker(r.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Shutting down cycle loop")
			return nil
		case <-ticker.C:
			if _, err := r.RunCycle(ctx); err != nil {
				r.log.Error("Cycle failed", "error", err)
			}
		}
	}
}

func (r *Runner) setLastReport(report *engine.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastReport = report
}

func (r *Runner) observe(report *engine.Report, states map[string]domain.RepairState) {
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	now := time.Now()
	cooling := 0
	for _, st := range states {
		if st.InCooldown(now) {
			cooling++
		}
	}
	metrics.IndexersInCooldown.Set(float64(cooling))
}
