// Package lists maps a job's configured list to the external list GUID and group.
package lists

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
)

// Source returns the lists the provider exposes for a store (nil store means global)
type Source interface {
	Lists(ctx context.Context, storeID *int64) ([]domain.List, error)
}

// Settings exposes the store-scoped list configuration
type Settings interface {
	ListID(storeID *int64) int64
	DefaultGroupID(storeID *int64) (int64, bool)
}

// Resolver resolves list configuration for jobs
type Resolver struct {
	source   Source
	settings Settings
	logger   *slog.Logger
}

// NewResolver creates a Resolver
func NewResolver(source Source, settings Settings, logger *slog.Logger) *Resolver {
	return &Resolver{
		source:   source,
		settings: settings,
		logger:   logger,
	}
}

// Resolve returns the lists visible to a store keyed by list id
func (r *Resolver) Resolve(ctx context.Context, storeID *int64) (domain.ListResolution, error) {
	lists, err := r.source.Lists(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lists: %w", err)
	}

	resolution := make(domain.ListResolution, len(lists))
	for _, l := range lists {
		resolution[l.ID] = l
	}

	return resolution, nil
}

// ApplyJobTarget derives the list GUID and group a job exports to.
// The job's own list wins over the store list; a zero group falls back to the store default.
// When the list is missing from the resolution the partial target is returned with ErrUnresolvedList.
func (r *Resolver) ApplyJobTarget(job domain.Job, resolution domain.ListResolution) (domain.ResolvedTarget, error) {
	target := domain.ResolvedTarget{
		ListID:  job.ListID,
		GroupID: job.GroupID,
	}

	if target.ListID == 0 {
		target.ListID = r.settings.ListID(job.StoreID)
	}

	if target.GroupID == 0 {
		if defaultGroup, ok := r.settings.DefaultGroupID(job.StoreID); ok {
			target.GroupID = defaultGroup
		}
	}

	list, ok := resolution[target.ListID]
	if !ok {
		return target, fmt.Errorf("job %d list %d: %w", job.ID, target.ListID, domain.ErrUnresolvedList)
	}

	target.ListGUID = list.GUID
	target.Groups = list.Groups

	return target, nil
}
