package projections

import (
	"context"

	"loyalty/internal/domain/syncrun"
)

// ListSyncRunsQuery carries query parameters.
type ListSyncRunsQuery struct {
	Limit int
}

// ListSyncRunsDeps holds dependencies for ListSyncRuns.
type ListSyncRunsDeps struct {
	RunStore SyncRunStore
}

// QueryListSyncRuns returns recent runs, newest first.
func QueryListSyncRuns(ctx context.Context, query ListSyncRunsQuery, deps ListSyncRunsDeps) ([]syncrun.Run, error) {
	runs, err := deps.RunStore.List(ctx, clampLimit(query.Limit))
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []syncrun.Run{}
	}
	return runs, nil
}
