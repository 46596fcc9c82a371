package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Store persists an index atomically: both stores and the video's run
// pointer change in one transaction or not at all.
type Store interface {
	ReplaceIndex(ctx context.Context, idx *Index) error
}

// CommitHook is notified after a run becomes visible.
type CommitHook func(videoID, runID string)

// Indexer is the only writer of the metadata and detection stores.
type Indexer struct {
	store  Store
	logger *slog.Logger

	mu    sync.RWMutex
	hooks []CommitHook
}

func NewIndexer(store Store, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:  store,
		logger: logger.With("component", "indexer"),
	}
}

func (i *Indexer) OnCommit(hook CommitHook) {
	i.mu.Lock()
	i.hooks = append(i.hooks, hook)
	i.mu.Unlock()
}

func (i *Indexer) Commit(ctx context.Context, idx *Index) error {
	if err := idx.Validate(); err != nil {
		return fmt.Errorf("validate index: %w", err)
	}
	if err := i.store.ReplaceIndex(ctx, idx); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	i.logger.Info("Index committed",
		"video_id", idx.VideoID,
		"run_id", idx.RunID,
		"frames", len(idx.Frames),
		"detections", len(idx.Detections),
		"persons", idx.PersonCount(),
		"cost_usd", idx.Cost)

	i.mu.RLock()
	hooks := append([]CommitHook(nil), i.hooks...)
	i.mu.RUnlock()
	for _, hook := range hooks {
		hook(idx.VideoID, idx.RunID)
	}
	return nil
}
