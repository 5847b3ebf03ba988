// ABOUTME: Periodic reconciliation of local conversation records with the upstream list
// ABOUTME: Adopts unknown upstream conversations, refreshes titles and invalidates vanished ones

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/2389/convo-gateway/internal/store"
	"github.com/2389/convo-gateway/internal/upstream"
)

var syncRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "convo_sync_runs_total",
		Help: "Conversation sync runs by outcome",
	},
	[]string{"outcome"},
)

// ErrOwnerNotFound is returned when the user that adopts unknown conversations
// does not exist.
var ErrOwnerNotFound = errors.New("sync owner not found")

// Lister lists every upstream conversation.
type Lister interface {
	ListAllConversations(ctx context.Context) ([]upstream.ConversationSummary, error)
}

// Config configures a Syncer.
type Config struct {
	Store    store.Store
	Upstream Lister
	// OwnerUsername owns conversations found upstream but not recorded locally.
	OwnerUsername string
	Interval      time.Duration
	Logger        *slog.Logger
}

// Result summarizes one sync pass.
type Result struct {
	Created     int
	Updated     int
	Invalidated int
}

// Syncer keeps rev conversation records in line with the upstream account.
type Syncer struct {
	store    store.Store
	upstream Lister
	owner    string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Syncer.
func New(cfg Config) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:    cfg.Store,
		upstream: cfg.Upstream,
		owner:    cfg.OwnerUsername,
		interval: cfg.Interval,
		logger:   logger.With("component", "syncer"),
		now:      time.Now,
	}
}

// SyncOnce runs a single reconciliation pass.
func (s *Syncer) SyncOnce(ctx context.Context) (res Result, err error) {
	defer func() {
		if err != nil {
			syncRuns.WithLabelValues("error").Inc()
			return
		}
		syncRuns.WithLabelValues("ok").Inc()
	}()

	remote, err := s.upstream.ListAllConversations(ctx)
	if err != nil {
		return res, fmt.Errorf("listing upstream conversations: %w", err)
	}

	local, err := s.store.ListConversations(ctx, store.ConversationFilter{Type: store.ConversationTypeRev})
	if err != nil {
		return res, fmt.Errorf("listing local conversations: %w", err)
	}
	byID := make(map[string]*store.Conversation, len(local))
	for _, c := range local {
		byID[c.ConversationID] = c
	}

	var ownerID string
	seen := make(map[string]struct{}, len(remote))
	now := s.now().UTC()

	for _, rc := range remote {
		seen[rc.ID] = struct{}{}

		if conv, ok := byID[rc.ID]; ok {
			// Invalid records stay invalid: a user delete whose upstream hide
			// failed must not come back on the next pass.
			if conv.Title == rc.Title {
				continue
			}
			conv.Title = rc.Title
			conv.UpdateTime = now
			if err := s.store.UpdateConversation(ctx, conv); err != nil {
				return res, fmt.Errorf("updating conversation %s: %w", rc.ID, err)
			}
			res.Updated++
			continue
		}

		if ownerID == "" {
			if ownerID, err = s.resolveOwner(ctx); err != nil {
				return res, err
			}
		}
		conv := &store.Conversation{
			ID:             uuid.New().String(),
			ConversationID: rc.ID,
			Type:           store.ConversationTypeRev,
			Title:          rc.Title,
			UserID:         ownerID,
			IsValid:        true,
			CreateTime:     timeOr(rc.CreateTime.Time, now),
			UpdateTime:     timeOr(rc.UpdateTime.Time, now),
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return res, fmt.Errorf("recording conversation %s: %w", rc.ID, err)
		}
		res.Created++
	}

	for _, conv := range local {
		if _, ok := seen[conv.ConversationID]; ok || !conv.IsValid {
			continue
		}
		conv.IsValid = false
		conv.UpdateTime = now
		if err := s.store.UpdateConversation(ctx, conv); err != nil {
			return res, fmt.Errorf("invalidating conversation %s: %w", conv.ConversationID, err)
		}
		res.Invalidated++
	}

	s.logger.Info("conversations synced",
		"upstream", len(remote),
		"created", res.Created,
		"updated", res.Updated,
		"invalidated", res.Invalidated,
	)
	return res, nil
}

// Run syncs every interval until ctx is canceled. Failed passes are logged
// and retried on the next tick.
func (s *Syncer) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("conversation sync failed", "error", err)
			}
		}
	}
}

func (s *Syncer) resolveOwner(ctx context.Context) (string, error) {
	if s.owner == "" {
		return "", ErrOwnerNotFound
	}
	user, err := s.store.GetUserByUsername(ctx, s.owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrOwnerNotFound, s.owner)
		}
		return "", fmt.Errorf("loading sync owner: %w", err)
	}
	return user.ID, nil
}

func timeOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t.UTC()
}
