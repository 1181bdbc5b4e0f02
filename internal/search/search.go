// Package search defines the web-search collaborator contract: one query in,
// a text summary plus a source list out.
package search

import (
	"context"
	"errors"
)

// ErrUnavailable signals the search backend cannot serve queries at all
// (missing credentials, unreachable endpoint). The orchestrator degrades the
// affected branch to a sentinel result instead of failing the run.
var ErrUnavailable = errors.New("search: service unavailable")

// Result is one answered query.
type Result struct {
	Summary string
	Sources []Source
}

// Source is one located document. Credibility is optional; zero means the
// backend did not score it.
type Source struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Credibility float64 `json:"credibility"`
}

// Service executes a web query and returns summarized text with sources. An
// absence of usable results is reported as an error, not an empty Result.
type Service interface {
	Search(ctx context.Context, query string) (Result, error)
}
