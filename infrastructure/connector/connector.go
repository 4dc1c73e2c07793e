// Package connector fetches and normalizes upstream records into
// documents. Each connector wraps one provider REST API and hides its
// paging, batching and rate limits.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/recallhq/recall/domain/document"
)

// ErrUnknownSource indicates no connector is registered for a source.
var ErrUnknownSource = errors.New("unknown source")

// FetchRequest parameterizes one fetch run.
type FetchRequest struct {
	// Token is a currently valid upstream access token.
	Token string

	// UserID is stamped on every normalized document.
	UserID string

	// Since bounds an incremental run; the zero value requests a full
	// backfill.
	Since time.Time

	// OnProgress, when set, is called with the running fetched count as
	// pages complete.
	OnProgress func(fetched int)
}

func (r FetchRequest) progress(fetched int) {
	if r.OnProgress != nil {
		r.OnProgress(fetched)
	}
}

// Connector fetches records from one upstream source and normalizes
// them into documents.
type Connector interface {
	// Source identifies the upstream this connector serves.
	Source() document.Source

	// Validate verifies the token can reach the upstream.
	Validate(ctx context.Context, token string) error

	// Fetch returns normalized documents for the request window. Records
	// that normalize to empty content are dropped, not failed.
	Fetch(ctx context.Context, req FetchRequest) ([]document.Document, error)
}

// Registry resolves connectors by source.
type Registry struct {
	connectors map[document.Source]Connector
}

// NewRegistry creates a Registry over the given connectors.
func NewRegistry(connectors ...Connector) *Registry {
	byName := make(map[document.Source]Connector, len(connectors))
	for _, c := range connectors {
		byName[c.Source()] = c
	}
	return &Registry{connectors: byName}
}

// Get returns the connector for a source.
func (r *Registry) Get(source document.Source) (Connector, error) {
	c, ok := r.connectors[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return c, nil
}

// Sources returns the registered sources in stable order.
func (r *Registry) Sources() []document.Source {
	sources := make([]document.Source, 0, len(r.connectors))
	for s := range r.connectors {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}
