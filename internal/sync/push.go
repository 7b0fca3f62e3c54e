// ABOUTME: Local mutations and their delivery to the server
// ABOUTME: Rows are deleted only after the server confirms; failures stay queued for the next cycle

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/harper/ttcache/internal/metrics"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/remote"
)

// RecordLocalMutation applies a flag change to the cached article and queues
// it for the server in one transaction, then nudges a background push.
func (c *Coordinator) RecordLocalMutation(ctx context.Context, articleID int, kind models.MutationKind, value bool) error {
	if kind == models.MutationNote {
		return fmt.Errorf("record mutation: use SetNote for notes")
	}
	return c.record(ctx, models.NewPendingMutation(articleID, kind, value, c.now()))
}

// SetNote sets the article note locally and queues it.
func (c *Coordinator) SetNote(ctx context.Context, articleID int, note string) error {
	return c.record(ctx, models.NewNoteMutation(articleID, note, c.now()))
}

func (c *Coordinator) record(ctx context.Context, m models.PendingMutation) error {
	if err := c.store.ApplyLocalMutations(ctx, []models.PendingMutation{m}); err != nil {
		return fmt.Errorf("record %s mutation: %w", m.Kind, err)
	}
	c.emit(Event{Kind: EventMutations, ArticleIDs: []int{m.ArticleID}})
	c.Nudge()
	return nil
}

// MarkFeedRead marks every cached unread article of a feed or category read
// and queues one read mutation per article. It returns the number marked.
func (c *Coordinator) MarkFeedRead(ctx context.Context, id int, isCategory bool) (int, error) {
	ids, err := c.store.MarkFeedRead(ctx, id, isCategory, c.freshSince(), c.now())
	if err != nil {
		return 0, fmt.Errorf("mark feed read: %w", err)
	}
	if len(ids) > 0 {
		c.emit(Event{Kind: EventMutations, ArticleIDs: ids})
		c.Nudge()
	}
	return len(ids), nil
}

// Nudge asks the run loop for an opportunistic push. It never blocks.
func (c *Coordinator) Nudge() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// PushResult counts the outcome of one push cycle.
type PushResult struct {
	Pushed  int
	Dropped int
	Failed  int
}

// PushPendingMutations delivers queued mutations. Confirmed and
// no-longer-relevant entries are deleted; failed ones stay for the next call.
// Read changes are sent in batches per value. A connectivity or auth failure
// ends the cycle early.
func (c *Coordinator) PushPendingMutations(ctx context.Context) (PushResult, error) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	var res PushResult
	muts, err := c.store.ListPendingMutations(ctx)
	if err != nil {
		return res, fmt.Errorf("push pending mutations: %w", err)
	}
	c.metrics.SetPending(len(muts))
	if len(muts) == 0 {
		return res, nil
	}
	if !c.online(ctx) {
		res.Failed = len(muts)
		err := fmt.Errorf("push pending mutations: %w", remote.ErrConnectivity)
		c.setLastError(err)
		return res, err
	}

	var done []string
	var firstErr error
	// settle reports whether the cycle should continue.
	settle := func(batch []models.PendingMutation, err error) bool {
		kind := string(batch[0].Kind)
		switch {
		case err == nil:
			res.Pushed += len(batch)
			c.metrics.RecordPush(kind, metrics.PushOK)
		case errors.Is(err, remote.ErrConflictIgnorable):
			res.Dropped += len(batch)
			c.metrics.RecordPush(kind, metrics.PushIgnored)
			c.logger.Debug("dropping mutation for missing article", "kind", kind, "article_id", batch[0].ArticleID)
		default:
			c.metrics.RecordPush(kind, metrics.PushFailed)
			if firstErr == nil {
				firstErr = err
			}
			c.logger.Warn("push failed, keeping mutation", "kind", kind, "count", len(batch), "err", err)
			// Connectivity and auth failures would fail every remaining call
			return remote.IsRetriable(err) && !errors.Is(err, remote.ErrConnectivity)
		}
		done = append(done, lo.Map(batch, func(m models.PendingMutation, _ int) string { return m.ID })...)
		return true
	}

	reads := lo.Filter(muts, func(m models.PendingMutation, _ int) bool { return m.Kind == models.MutationRead })
	others := lo.Filter(muts, func(m models.PendingMutation, _ int) bool { return m.Kind != models.MutationRead })
	byValue := lo.GroupBy(reads, func(m models.PendingMutation) bool { return m.Value })

	cont := true
	for _, value := range []bool{true, false} {
		batch := byValue[value]
		if len(batch) == 0 || !cont {
			continue
		}
		ids := lo.Map(batch, func(m models.PendingMutation, _ int) int { return m.ArticleID })
		cont = settle(batch, c.remote.MutateReadState(ctx, ids, value))
	}
	for _, m := range others {
		if !cont {
			break
		}
		cont = settle([]models.PendingMutation{m}, c.pushOne(ctx, m))
	}

	if len(done) > 0 {
		c.mergeMu.Lock()
		_, err := c.store.DeletePendingMutations(ctx, done)
		c.mergeMu.Unlock()
		if err != nil {
			return res, fmt.Errorf("push pending mutations: %w", err)
		}
	}
	res.Failed = len(muts) - res.Pushed - res.Dropped
	c.metrics.SetPending(res.Failed)

	if firstErr != nil {
		err := fmt.Errorf("push pending mutations: %w", firstErr)
		c.setLastError(err)
		return res, err
	}
	if res.Pushed+res.Dropped > 0 {
		c.logger.Info("pushed pending mutations", "pushed", res.Pushed, "dropped", res.Dropped)
	}
	return res, nil
}

func (c *Coordinator) pushOne(ctx context.Context, m models.PendingMutation) error {
	switch m.Kind {
	case models.MutationRead:
		return c.remote.MutateReadState(ctx, []int{m.ArticleID}, m.Value)
	case models.MutationStar:
		return c.remote.MutateStarState(ctx, m.ArticleID, m.Value)
	case models.MutationPublish:
		return c.remote.MutatePublishState(ctx, m.ArticleID, m.Value, "")
	case models.MutationNote:
		return c.remote.MutateNote(ctx, m.ArticleID, m.Note)
	default:
		// Unknown kinds from a newer schema are kept, not dropped
		return fmt.Errorf("unsupported mutation kind %q", m.Kind)
	}
}
