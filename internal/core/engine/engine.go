// Package engine implements the repair decision engine: the per-indexer
// state machine that decides whether an indexer is eligible for testing,
// drives the remediation candidate cascade through the retry executor,
// applies the winning configuration or rolls back, and updates the
// durable repair state.
package engine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rotatarr/rotatarr/internal/core/domain"
	"github.com/rotatarr/rotatarr/internal/core/retry"
	"github.com/rotatarr/rotatarr/internal/core/strategy"
	"github.com/rotatarr/rotatarr/internal/metrics"
)

// Aggregator is the slice of the aggregator API the engine needs.
type Aggregator interface {
	TestIndexer(ctx context.Context, payload any) domain.TestOutcome
	UpdateIndexer(ctx context.Context, id int, ix *domain.Indexer) (*domain.Indexer, error)
	FindOrCreateTag(ctx context.Context, label string) (*domain.Tag, error)
}

// Config is the engine's immutable per-run configuration.
type Config struct {
	TagToTry               string
	TagForce               bool
	ApplyTagSaveBeforeTest bool
	TestAsUI               bool
	DryRun                 bool
	MaxAttempts            int
	Cooldown               time.Duration
	ForceTest              []string // names or ids, matched case-insensitively
}

func (c Config) isForced(name, id string) bool {
	for _, f := range c.ForceTest {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.EqualFold(f, name) || strings.EqualFold(f, id) {
			return true
		}
	}
	return false
}

// Engine decides one indexer per call; the cycle runner feeds it
// sequentially. It never mutates the passed-in definition, only clones.
type Engine struct {
	agg  Aggregator
	cfg  Config
	exec retry.Executor
	log  *slog.Logger
	now  func() time.Time
}

// New creates an engine.
func New(agg Aggregator, cfg Config, exec retry.Executor) *Engine {
	return &Engine{
		agg:  agg,
		cfg:  cfg,
		exec: exec,
		log:  slog.Default(),
		now:  time.Now,
	}
}

// Decide runs the state machine for one indexer and returns the outcome
// plus the updated repair state. broken reflects the aggregator's own
// validity verdict for the current configuration.
func (e *Engine) Decide(ctx context.Context, ix *domain.Indexer, broken bool, st domain.RepairState) (Outcome, domain.RepairState) {
	now := e.now()
	id := strconv.Itoa(ix.ID)
	out := Outcome{IndexerID: ix.ID, Name: ix.Name, DryRun: e.cfg.DryRun}

	forced := e.cfg.isForced(ix.Name, id)
	if st.InCooldown(now) && !forced {
		e.log.Info("Indexer in cooldown, skipping",
			"indexer", ix.Name, "id", ix.ID, "until", *st.CooldownUntil)
		out.State = StateSkipped
		out.Reason = "cooldown until " + st.CooldownUntil.Format(time.RFC3339)
		return out, st
	}
	if forced {
		if st.CooldownUntil != nil {
			e.log.Info("Forced retest overrides cooldown", "indexer", ix.Name, "id", ix.ID)
		}
		st.CooldownUntil = nil
	}

	st.LastAttemptAt = &now

	if !broken {
		// Current config confirmed good by the aggregator; no candidates needed.
		tagApplied := st.LastKnownGood != nil &&
			st.LastKnownGood.BaseURL == ix.BaseURL() &&
			st.LastKnownGood.TagApplied
		st.ConsecutiveFailures = 0
		st.CooldownUntil = nil
		st.LastKnownGood = &domain.GoodConfig{BaseURL: ix.BaseURL(), TagApplied: tagApplied}
		out.State = StateHealthy
		return out, st
	}

	e.log.Info("Indexer appears broken, attempting repair", "indexer", ix.Name, "id", ix.ID)

	tag := e.resolveTag(ctx)
	tagAlready := tag != nil && tag.ID > 0 && ix.HasTag(tag.ID)

	it := strategy.Sequence(ix, strategy.Options{
		TagConfigured:     tag != nil,
		TagAlreadyApplied: tagAlready,
		TagForce:          e.cfg.TagForce,
		TestAsUI:          e.cfg.TestAsUI,
	})

	for {
		cand, ok := it.Next()
		if !ok {
			break
		}
		out.CandidatesTried++
		metrics.CandidatesTried.WithLabelValues(cand.Payload.String()).Inc()

		e.log.Debug("Testing candidate", "indexer", ix.Name, "candidate", cand.Label())
		result := e.testCandidate(ctx, ix, cand, tag)
		if !result.Success {
			e.log.Debug("Candidate failed", "indexer", ix.Name,
				"candidate", cand.Label(), "result", result.String())
			continue
		}

		e.log.Info("Candidate passed, applying configuration",
			"indexer", ix.Name, "candidate", cand.Label(), "dry_run", e.cfg.DryRun)
		if err := e.apply(ctx, ix, cand, tag); err != nil {
			// The config is proven good; the save will be retried next cycle.
			e.log.Error("Failed to persist repaired configuration",
				"indexer", ix.Name, "error", err)
			out.Reason = "save failed: " + err.Error()
		}

		st.ConsecutiveFailures = 0
		st.CooldownUntil = nil
		st.LastKnownGood = &domain.GoodConfig{BaseURL: cand.BaseURL, TagApplied: cand.TagApplied}
		out.State = StateRepaired
		out.AppliedURL = cand.BaseURL
		out.TagApplied = cand.TagApplied
		return out, st
	}

	// Every candidate failed: roll back to last known good if it differs.
	current := domain.GoodConfig{BaseURL: ix.BaseURL(), TagApplied: tagAlready}
	if st.LastKnownGood != nil && *st.LastKnownGood != current {
		out.RolledBack = true
		e.rollback(ctx, ix, *st.LastKnownGood, tag)
	}

	st.ConsecutiveFailures++
	if st.ConsecutiveFailures >= e.cfg.MaxAttempts {
		until := now.Add(e.cfg.Cooldown)
		st.CooldownUntil = &until
		e.log.Info("Indexer entering cooldown",
			"indexer", ix.Name, "id", ix.ID,
			"failures", st.ConsecutiveFailures, "until", until)
	}

	out.State = StateFailedRollback
	return out, st
}

// resolveTag looks up (or creates) the configured bypass tag. In dry-run
// mode a placeholder id is used so no tag is ever created remotely.
func (e *Engine) resolveTag(ctx context.Context) *domain.Tag {
	if e.cfg.TagToTry == "" {
		return nil
	}
	if e.cfg.DryRun {
		return &domain.Tag{ID: -1, Label: e.cfg.TagToTry}
	}
	tag, err := e.agg.FindOrCreateTag(ctx, e.cfg.TagToTry)
	if err != nil {
		e.log.Warn("Failed to resolve tag, simulating in payload only",
			"tag", e.cfg.TagToTry, "error", err)
		return &domain.Tag{ID: -1, Label: e.cfg.TagToTry}
	}
	return tag
}

// testCandidate builds the candidate's test payload and runs it through
// the transient-retry executor. With APPLY_TAG_SAVE_BEFORE_TEST the tag
// change is persisted first, mirroring an operator's save-then-test, and
// reverted when the test fails.
func (e *Engine) testCandidate(ctx context.Context, ix *domain.Indexer, cand domain.Candidate, tag *domain.Tag) domain.TestOutcome {
	clone := ix.Clone()
	clone.SetBaseURL(cand.BaseURL)
	// Placeholder ids (-1) ride along in the ephemeral test payload so
	// tag candidates stay distinct; only real ids are ever persisted.
	if cand.TagApplied && tag != nil {
		clone.AddTag(tag.ID)
	}

	savedBefore := false
	if e.cfg.ApplyTagSaveBeforeTest && !e.cfg.DryRun &&
		cand.TagApplied && tag != nil && tag.ID > 0 && !ix.HasTag(tag.ID) {
		if _, err := e.agg.UpdateIndexer(ctx, ix.ID, clone); err != nil {
			e.log.Warn("Failed to persist tag before testing",
				"indexer", ix.Name, "error", err)
		} else {
			savedBefore = true
		}
	}

	var payload any = clone
	if cand.Payload == domain.PayloadUIMinimal {
		payload = clone.UIPayload()
	}

	result := e.exec.Do(ctx, func(ctx context.Context) domain.TestOutcome {
		return e.agg.TestIndexer(ctx, payload)
	})

	if savedBefore && !result.Success {
		if _, err := e.agg.UpdateIndexer(ctx, ix.ID, ix); err != nil {
			e.log.Warn("Failed to revert premature save after failed test",
				"indexer", ix.Name, "error", err)
		}
	}
	return result
}

// apply persists the winning candidate unless running dry.
func (e *Engine) apply(ctx context.Context, ix *domain.Indexer, cand domain.Candidate, tag *domain.Tag) error {
	if e.cfg.DryRun {
		e.log.Info("DRY_RUN: would save configuration",
			"indexer", ix.Name, "base_url", cand.BaseURL, "tag_applied", cand.TagApplied)
		return nil
	}

	clone := ix.Clone()
	clone.SetBaseURL(cand.BaseURL)
	if cand.TagApplied && tag != nil && tag.ID > 0 {
		clone.AddTag(tag.ID)
	}

	_, err := e.agg.UpdateIndexer(ctx, ix.ID, clone)
	return err
}

// rollback restores the last known good configuration exactly once.
func (e *Engine) rollback(ctx context.Context, ix *domain.Indexer, good domain.GoodConfig, tag *domain.Tag) {
	if e.cfg.DryRun {
		e.log.Info("DRY_RUN: would roll back to last known good",
			"indexer", ix.Name, "base_url", good.BaseURL, "tag_applied", good.TagApplied)
		return
	}

	e.log.Info("Rolling back to last known good configuration",
		"indexer", ix.Name, "base_url", good.BaseURL, "tag_applied", good.TagApplied)

	restore := ix.Clone()
	restore.SetBaseURL(good.BaseURL)
	if good.TagApplied && tag != nil && tag.ID > 0 {
		restore.AddTag(tag.ID)
	}

	if _, err := e.agg.UpdateIndexer(ctx, ix.ID, restore); err != nil {
		e.log.Error("Rollback failed", "indexer", ix.Name, "error", err)
	}
}
