package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotatarr/rotatarr/internal/core/config"
	"github.com/rotatarr/rotatarr/internal/core/domain"
	"github.com/rotatarr/rotatarr/internal/core/engine"
	"github.com/rotatarr/rotatarr/internal/infra/prowlarr"
	"github.com/rotatarr/rotatarr/internal/infra/state/file"
)

// fakeProwlarr is a minimal aggregator: indexer 1 is failing with base
// URL a.example (alternate b.example works), indexer 2 is healthy.
func fakeProwlarr(t *testing.T) *httptest.Server {
	t.Helper()

	now := time.Now()
	indexers := []domain.Indexer{
		{
			ID:             1,
			Name:           "broken",
			Implementation: "Cardigann",
			Fields:         []domain.Field{{Name: "baseUrl", Value: "https://a.example"}},
			IndexerUrls:    []string{"https://a.example", "https://b.example"},
		},
		{
			ID:             2,
			Name:           "fine",
			Implementation: "Cardigann",
			Fields:         []domain.Field{{Name: "baseUrl", Value: "https://ok.example"}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/indexer", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(indexers)
	})
	mux.HandleFunc("GET /api/v1/indexerstatus", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.IndexerStatus{
			{IndexerID: 1, MostRecentFailure: &now},
		})
	})
	mux.HandleFunc("POST /api/v1/indexer/test", func(w http.ResponseWriter, r *http.Request) {
		var ix domain.Indexer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ix))
		if ix.BaseURL() == "https://b.example" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("PUT /api/v1/indexer/1", func(w http.ResponseWriter, r *http.Request) {
		var ix domain.Indexer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ix))
		indexers[0] = ix
		json.NewEncoder(w).Encode(ix)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, url string) *config.Config {
	cfg := config.Default()
	cfg.ProwlarrURL = url
	cfg.ProwlarrAPIKey = "key"
	cfg.DryRun = false
	cfg.TestRetryDelaySec = 1
	cfg.StateFile = filepath.Join(t.TempDir(), "state.json")
	return cfg
}

func TestRunCycle_RepairsAndPersistsState(t *testing.T) {
	srv := fakeProwlarr(t)
	cfg := testConfig(t, srv.URL)

	store := file.NewStore(cfg.StateFile)
	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 5*time.Second)
	runner := newRunner(cfg, client, store)

	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)

	counts := report.Counts()
	assert.Equal(t, 1, counts[engine.StateRepaired])
	assert.Equal(t, 1, counts[engine.StateHealthy])

	// The repaired indexer was saved with the working alternate URL.
	var repaired engine.Outcome
	for _, o := range report.Outcomes {
		if o.State == engine.StateRepaired {
			repaired = o
		}
	}
	assert.Equal(t, "https://b.example", repaired.AppliedURL)

	// State was persisted with the winner as last known good.
	states, err := store.Load(context.Background())
	require.NoError(t, err)
	st := states["1"]
	assert.Zero(t, st.ConsecutiveFailures)
	require.NotNil(t, st.LastKnownGood)
	assert.Equal(t, "https://b.example", st.LastKnownGood.BaseURL)

	assert.Equal(t, report, runner.LastReport())
}

func TestRunCycle_UpstreamUnavailableKeepsState(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	// Pre-existing state on disk must survive an aborted cycle untouched.
	original := []byte(`{"1":{"consecutive_failures":2}}`)
	require.NoError(t, os.WriteFile(cfg.StateFile, original, 0o644))

	store := file.NewStore(cfg.StateFile)
	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 200*time.Millisecond)
	runner := newRunner(cfg, client, store)

	_, err := runner.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, prowlarr.ErrUpstreamUnavailable)

	data, readErr := os.ReadFile(cfg.StateFile)
	require.NoError(t, readErr)
	assert.Equal(t, original, data, "aborted cycle must not overwrite state")
	assert.Nil(t, runner.LastReport())
}

func TestRunCycle_CooldownSkipsTesting(t *testing.T) {
	testCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/indexer", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.Indexer{{
			ID:             1,
			Name:           "cooling",
			Implementation: "Cardigann",
			Fields:         []domain.Field{{Name: "baseUrl", Value: "https://a.example"}},
		}})
	})
	now := time.Now()
	mux.HandleFunc("GET /api/v1/indexerstatus", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.IndexerStatus{{IndexerID: 1, MostRecentFailure: &now}})
	})
	mux.HandleFunc("POST /api/v1/indexer/test", func(w http.ResponseWriter, r *http.Request) {
		testCalls++
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	store := file.NewStore(cfg.StateFile)

	until := time.Now().Add(time.Hour)
	require.NoError(t, store.Save(context.Background(), map[string]domain.RepairState{
		"1": {ConsecutiveFailures: 3, CooldownUntil: &until},
	}))

	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 5*time.Second)
	runner := newRunner(cfg, client, store)

	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts()[engine.StateSkipped])
	assert.Zero(t, testCalls, "cooldown must prevent all test calls")
}

// An indexer with no status failure but a visibly unusable definition
// must still be repaired, not confirmed healthy.
func TestRunCycle_DefinitionHeuristicTriggersRepair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/indexer", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.Indexer{{
			ID:   1,
			Name: "undefined",
			// No implementation or definition name at all.
			Fields:      []domain.Field{{Name: "baseUrl", Value: "https://a.example"}},
			IndexerUrls: []string{"https://a.example", "https://b.example"},
		}})
	})
	mux.HandleFunc("GET /api/v1/indexerstatus", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.IndexerStatus{})
	})
	mux.HandleFunc("POST /api/v1/indexer/test", func(w http.ResponseWriter, r *http.Request) {
		var ix domain.Indexer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ix))
		if ix.BaseURL() == "https://b.example" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("PUT /api/v1/indexer/1", func(w http.ResponseWriter, r *http.Request) {
		var ix domain.Indexer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ix))
		json.NewEncoder(w).Encode(ix)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	store := file.NewStore(cfg.StateFile)
	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 5*time.Second)
	runner := newRunner(cfg, client, store)

	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, engine.StateRepaired, report.Outcomes[0].State)
	assert.Equal(t, "https://b.example", report.Outcomes[0].AppliedURL)
}

func TestRun_OneShot(t *testing.T) {
	srv := fakeProwlarr(t)
	cfg := testConfig(t, srv.URL)
	cfg.OneShot = true
	cfg.MetricsPort = 0 // random port

	store := file.NewStore(cfg.StateFile)
	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 5*time.Second)
	runner := newRunner(cfg, client, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, runner.Run(ctx))
	require.NotNil(t, runner.LastReport())
}
