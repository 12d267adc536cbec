package services

import (
	"context"

	"social-go/internal/metrics"
	"social-go/internal/models"
	"social-go/internal/storage"
)

// BlockedSet holds every user with a block in either direction with the viewer.
type BlockedSet map[string]struct{}

// Contains reports whether id is on the other side of a block.
func (s BlockedSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Visible keeps the items whose id is not in set, preserving order.
func Visible[T any](set BlockedSet, items []T, idOf func(T) string) []T {
	if len(set) == 0 {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !set.Contains(idOf(item)) {
			out = append(out, item)
		}
	}
	return out
}

// VisibilityFilter 从任何列表中排除与查看者存在拉黑关系的用户。
// 拉黑行只按查看者批量读取一次，不逐条查询。
type VisibilityFilter struct {
	blocks  storage.BlockRepository
	metrics *metrics.Metrics
}

// NewVisibilityFilter creates a filter over the blocks table.
func NewVisibilityFilter(blocks storage.BlockRepository, m *metrics.Metrics) *VisibilityFilter {
	return &VisibilityFilter{blocks: blocks, metrics: m}
}

// BlockedSet loads every block row touching viewer.
func (f *VisibilityFilter) BlockedSet(ctx context.Context, viewer string) (BlockedSet, error) {
	set := BlockedSet{}
	if viewer == "" {
		return set, nil
	}
	rows, err := f.blocks.ListTouching(ctx, viewer)
	if err != nil {
		return nil, storeErr("list blocks", err)
	}
	for _, b := range rows {
		if b.BlockerID == viewer {
			set[b.BlockedID] = struct{}{}
		} else {
			set[b.BlockerID] = struct{}{}
		}
	}
	return set, nil
}

// FilterIDs drops blocked ids from ids.
func (f *VisibilityFilter) FilterIDs(ctx context.Context, viewer string, ids []string) ([]string, error) {
	set, err := f.BlockedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return Apply(f, "ids", set, ids, func(id string) string { return id }), nil
}

// FilterProfiles drops blocked profiles.
func (f *VisibilityFilter) FilterProfiles(ctx context.Context, viewer string, profiles []models.Profile) ([]models.Profile, error) {
	set, err := f.BlockedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return Apply(f, "profiles", set, profiles, func(p models.Profile) string { return p.ID }), nil
}

// Apply is Visible plus the hidden-item metric for listing.
func Apply[T any](f *VisibilityFilter, listing string, set BlockedSet, items []T, idOf func(T) string) []T {
	out := Visible(set, items, idOf)
	if f != nil {
		f.metrics.Hidden(listing, len(items)-len(out))
	}
	return out
}
