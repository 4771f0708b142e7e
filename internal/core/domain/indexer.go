package domain

import (
	"strings"
	"time"
)

// Field is a single name/value entry from an indexer definition.
// Prowlarr stores per-implementation settings (including the base URL)
// as a flat field list rather than a typed settings object.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
}

// Indexer is an indexer definition as returned by the aggregator API.
// The aggregator owns this object; the repair engine only ever mutates
// deep copies of it.
type Indexer struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Implementation string   `json:"implementation,omitempty"`
	DefinitionName string   `json:"definitionName,omitempty"`
	Protocol       string   `json:"protocol,omitempty"`
	Enable         bool     `json:"enable"`
	Priority       int      `json:"priority,omitempty"`
	AppProfileID   int      `json:"appProfileId,omitempty"`
	Fields         []Field  `json:"fields,omitempty"`
	IndexerUrls    []string `json:"indexerUrls,omitempty"`
	LegacyUrls     []string `json:"legacyUrls,omitempty"`
	Tags           []int    `json:"tags,omitempty"`

	Message *ProviderMessage `json:"message,omitempty"`
}

// ProviderMessage is the aggregator's inline notice on a definition,
// e.g. "this indexer has no definition and will not work".
type ProviderMessage struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// Tag is an aggregator-side label that can be attached to indexers,
// typically to route them through a bypass proxy.
type Tag struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// IndexerStatus is the aggregator's health record for one indexer.
type IndexerStatus struct {
	IndexerID         int        `json:"indexerId"`
	InitialFailure    *time.Time `json:"initialFailure,omitempty"`
	MostRecentFailure *time.Time `json:"mostRecentFailure,omitempty"`
	DisabledTill      *time.Time `json:"disabledTill,omitempty"`
}

// Failing reports whether the status record marks the indexer as broken.
func (s IndexerStatus) Failing() bool {
	return s.MostRecentFailure != nil || s.DisabledTill != nil
}

// AppearsBroken applies definition-level heuristics for indexers the
// status endpoint carries no failure record for: an error-typed provider
// message, a definition with no implementation at all, or an empty
// definitionFile setting all mean the indexer cannot work.
func (ix *Indexer) AppearsBroken() bool {
	if ix.Message != nil && strings.EqualFold(ix.Message.Type, "error") {
		return true
	}
	if ix.Implementation == "" && ix.DefinitionName == "" {
		return true
	}
	for _, f := range ix.Fields {
		if !strings.EqualFold(f.Name, "definitionFile") {
			continue
		}
		if f.Value == nil {
			return true
		}
		if s, ok := f.Value.(string); ok && s == "" {
			return true
		}
	}
	return false
}

const baseURLField = "baseUrl"

// BaseURL returns the currently configured base URL, falling back to the
// first known indexer URL when the field is absent.
func (ix *Indexer) BaseURL() string {
	for _, f := range ix.Fields {
		if strings.EqualFold(f.Name, baseURLField) {
			if s, ok := f.Value.(string); ok {
				return s
			}
		}
	}
	if len(ix.IndexerUrls) > 0 {
		return ix.IndexerUrls[0]
	}
	return ""
}

// SetBaseURL rewrites the base URL field, creating it if missing.
func (ix *Indexer) SetBaseURL(url string) {
	for i, f := range ix.Fields {
		if strings.EqualFold(f.Name, baseURLField) {
			ix.Fields[i].Value = url
			return
		}
	}
	ix.Fields = append(ix.Fields, Field{Name: baseURLField, Value: url})
}

// AlternateURLs returns the known alternate base URLs in listed order:
// indexerUrls first, then legacyUrls, deduplicated, with the current
// base URL excluded.
func (ix *Indexer) AlternateURLs() []string {
	current := ix.BaseURL()
	seen := map[string]bool{current: true}
	var out []string
	for _, u := range append(append([]string{}, ix.IndexerUrls...), ix.LegacyUrls...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// HasTag reports whether the given tag id is attached.
func (ix *Indexer) HasTag(id int) bool {
	for _, t := range ix.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// AddTag attaches a tag id if not already present.
func (ix *Indexer) AddTag(id int) {
	if !ix.HasTag(id) {
		ix.Tags = append(ix.Tags, id)
	}
}

// Clone returns a deep copy safe to mutate during candidate testing.
func (ix *Indexer) Clone() *Indexer {
	cp := *ix
	cp.Fields = append([]Field(nil), ix.Fields...)
	cp.IndexerUrls = append([]string(nil), ix.IndexerUrls...)
	cp.LegacyUrls = append([]string(nil), ix.LegacyUrls...)
	cp.Tags = append([]int(nil), ix.Tags...)
	if ix.Message != nil {
		msg := *ix.Message
		cp.Message = &msg
	}
	return &cp
}

// UITestPayload is the reduced test request shape mimicking what the
// aggregator's own UI sends. Some upstream services reject the full
// definition payload (anti-bot challenges) while accepting this shape.
type UITestPayload struct {
	ID             int      `json:"id,omitempty"`
	Name           string   `json:"name,omitempty"`
	Implementation string   `json:"implementation,omitempty"`
	DefinitionName string   `json:"definitionName,omitempty"`
	Fields         []Field  `json:"fields,omitempty"`
	IndexerUrls    []string `json:"indexerUrls,omitempty"`
	LegacyUrls     []string `json:"legacyUrls,omitempty"`
	Tags           []int    `json:"tags,omitempty"`
}

// UIPayload builds the UI-minimal test payload for this definition.
func (ix *Indexer) UIPayload() UITestPayload {
	return UITestPayload{
		ID:             ix.ID,
		Name:           ix.Name,
		Implementation: ix.Implementation,
		DefinitionName: ix.DefinitionName,
		Fields:         append([]Field(nil), ix.Fields...),
		IndexerUrls:    append([]string(nil), ix.IndexerUrls...),
		LegacyUrls:     append([]string(nil), ix.LegacyUrls...),
		Tags:           append([]int(nil), ix.Tags...),
	}
}
