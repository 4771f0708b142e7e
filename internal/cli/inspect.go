package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotatarr/rotatarr/internal/core/domain"
	"github.com/rotatarr/rotatarr/internal/infra/prowlarr"
)

var dumpIndexers []string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show indexer definitions as the aggregator reports them",
	Long:  `Inspect lists every indexer with its health, base URL and alternate URL count, useful for checking what the repair engine would have to work with. --dump prints the full JSON definition of the named indexers.`,
	Run:   runInspect,
}

func init() {
	inspectCmd.Flags().StringSliceVar(&dumpIndexers, "dump", nil, "indexer names or ids to dump as JSON")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := prowlarr.New(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, 30*time.Second)

	indexers, err := client.ListIndexers(ctx)
	if err != nil {
		slog.Error("Failed to list indexers", "error", err)
		os.Exit(1)
	}
	statuses, err := client.ListStatuses(ctx)
	if err != nil {
		slog.Error("Failed to list indexer statuses", "error", err)
		os.Exit(1)
	}

	failing := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		if s.Failing() {
			failing[s.IndexerID] = true
		}
	}

	if len(dumpIndexers) > 0 {
		dump(ctx, client, indexers)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tHEALTH\tBASE URL\tALT URLS\tTAGS")

	for i := range indexers {
		ix := &indexers[i]
		health := "ok"
		if failing[ix.ID] || ix.AppearsBroken() {
			health = "failing"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
			ix.ID, ix.Name, health, ix.BaseURL(), len(ix.AlternateURLs()), len(ix.Tags))
	}
	_ = w.Flush()
}

func dump(ctx context.Context, client *prowlarr.Client, indexers []domain.Indexer) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for i := range indexers {
		ix := &indexers[i]
		if !dumpRequested(ix) {
			continue
		}
		// Re-fetch by id so the dump reflects the definition as stored,
		// not the possibly abbreviated list view.
		full, err := client.GetIndexer(ctx, ix.ID)
		if err != nil {
			slog.Error("Failed to fetch indexer", "name", ix.Name, "error", err)
			full = ix
		}
		if err := enc.Encode(full); err != nil {
			slog.Error("Failed to encode indexer", "name", ix.Name, "error", err)
		}
	}
}

func dumpRequested(ix *domain.Indexer) bool {
	id := strconv.Itoa(ix.ID)
	for _, want := range dumpIndexers {
		if strings.EqualFold(want, ix.Name) || want == id {
			return true
		}
	}
	return false
}
