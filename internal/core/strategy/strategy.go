// Package strategy produces the ordered sequence of candidate
// configurations tried when repairing a broken indexer. Ordering is
// cheapest-safest-first: reconfirm the current configuration, rotate
// through alternate base URLs, apply the bypass tag, and finally relax
// the test payload shape to the UI-minimal variant.
package strategy

import (
	"github.com/rotatarr/rotatarr/internal/core/domain"
)

// Options controls which candidate phases are generated.
type Options struct {
	TagConfigured     bool // a bypass tag is configured (TAG_TO_TRY non-empty)
	TagAlreadyApplied bool // the indexer already carries the tag
	TagForce          bool // tag is applied on every candidate, not as a fallback phase
	TestAsUI          bool // append UI-minimal variants of all full-payload candidates
}

// Iterator is a lazy, finite, non-restartable view over the candidate
// sequence. Callers consume it with Next and short-circuit on the first
// success.
type Iterator struct {
	items []domain.Candidate
	pos   int
}

// Next returns the next candidate, or false when the sequence is exhausted.
func (it *Iterator) Next() (domain.Candidate, bool) {
	if it.pos >= len(it.items) {
		return domain.Candidate{}, false
	}
	c := it.items[it.pos]
	it.pos++
	return c, true
}

// Remaining returns how many candidates have not been consumed yet.
func (it *Iterator) Remaining() int {
	return len(it.items) - it.pos
}

// Sequence builds the candidate iterator for one indexer:
//
//  1. current base URL, tag unchanged, full payload (reconfirm it is
//     actually broken; guards against transient false failures);
//  2. each alternate base URL in listed order, tag unchanged, full payload;
//  3. if a tag is configured and not already applied: current base URL and
//     then each alternate again, with the tag applied, full payload;
//  4. if TestAsUI: a UI-minimal variant of every full-payload candidate
//     above, in the same order.
//
// With TagForce the tag rides along on every candidate from phase 1, so
// the separate tag phase collapses away.
func Sequence(def *domain.Indexer, opts Options) *Iterator {
	urls := append([]string{def.BaseURL()}, def.AlternateURLs()...)

	baseTag := opts.TagAlreadyApplied || (opts.TagForce && opts.TagConfigured)

	var full []domain.Candidate
	for _, u := range urls {
		full = append(full, domain.Candidate{BaseURL: u, TagApplied: baseTag, Payload: domain.PayloadFull})
	}

	if opts.TagConfigured && !opts.TagAlreadyApplied && !opts.TagForce {
		for _, u := range urls {
			full = append(full, domain.Candidate{BaseURL: u, TagApplied: true, Payload: domain.PayloadFull})
		}
	}

	items := full
	if opts.TestAsUI {
		for _, c := range full {
			c.Payload = domain.PayloadUIMinimal
			items = append(items, c)
		}
	}

	return &Iterator{items: items}
}
