package domain

import "fmt"

// ErrorKind classifies a failed test probe.
type ErrorKind int

const (
	ErrorNone      ErrorKind = iota // no error (success)
	ErrorTransient                  // rate limiting, timeout; eligible for retry
	ErrorPermanent                  // this configuration is simply wrong
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTransient:
		return "transient"
	case ErrorPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// PayloadMode selects the test request shape for a candidate.
type PayloadMode int

const (
	PayloadFull      PayloadMode = iota // complete indexer definition
	PayloadUIMinimal                    // reduced UI-equivalent shape
)

func (m PayloadMode) String() string {
	if m == PayloadUIMinimal {
		return "ui"
	}
	return "full"
}

// Candidate is one concrete configuration proposed as a fix attempt.
// Candidates are ephemeral; they live for a single decision cycle.
type Candidate struct {
	BaseURL    string
	TagApplied bool
	Payload    PayloadMode
}

// Label renders a short human-readable description for logs.
func (c Candidate) Label() string {
	label := c.BaseURL
	if c.TagApplied {
		label += "+tag"
	}
	if c.Payload == PayloadUIMinimal {
		label += "+ui"
	}
	return label
}

// TestOutcome is the result of a single test probe against the aggregator.
type TestOutcome struct {
	Success    bool
	Kind       ErrorKind
	HTTPStatus int
	Message    string
}

// OK returns a successful outcome.
func OK() TestOutcome {
	return TestOutcome{Success: true}
}

// Transient returns a retryable failure outcome.
func Transient(status int, msg string) TestOutcome {
	return TestOutcome{Kind: ErrorTransient, HTTPStatus: status, Message: msg}
}

// Permanent returns a non-retryable failure outcome.
func Permanent(status int, msg string) TestOutcome {
	return TestOutcome{Kind: ErrorPermanent, HTTPStatus: status, Message: msg}
}

func (o TestOutcome) String() string {
	if o.Success {
		return "success"
	}
	return fmt.Sprintf("%s (http %d): %s", o.Kind, o.HTTPStatus, o.Message)
}
