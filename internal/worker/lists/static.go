package lists

import (
	"context"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
)

// GlobalStore is the catalogue key used for jobs without a store
const GlobalStore int64 = 0

// StaticSource serves lists declared in configuration
type StaticSource struct {
	byStore map[int64][]domain.List
}

// NewStaticSource creates a source from a per-store catalogue.
// Stores without an entry see the GlobalStore catalogue.
func NewStaticSource(byStore map[int64][]domain.List) *StaticSource {
	return &StaticSource{byStore: byStore}
}

func (s *StaticSource) Lists(ctx context.Context, storeID *int64) ([]domain.List, error) {
	if storeID != nil {
		if lists, ok := s.byStore[*storeID]; ok {
			return lists, nil
		}
	}
	return s.byStore[GlobalStore], nil
}
