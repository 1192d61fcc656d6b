package identity

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
)

const mergeReasonEmailMatch = "email_match"

// ProfileInvalidator drops cached profiles made stale by graph writes.
// *cache.ProfileCache satisfies it.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, canonicalIDs ...string)
}

// MergeReport summarizes one merge pass.
type MergeReport struct {
	Classes          int
	MergedIdentities int
	MovedLinks       int
	SupersededLinks  int
}

// MergeResolver collapses duplicate canonical identities discovered via a
// shared plaintext email. Merging is deliberately limited to this
// highest-confidence signal; hash links are lookup-only and never trigger
// merges. The pass is idempotent: a second run finds nothing to do.
type MergeResolver struct {
	store      graph.Store
	profiles   ProfileInvalidator
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewMergeResolver constructs a merge resolver. profiles and dispatcher may
// be nil.
func NewMergeResolver(store graph.Store, profiles ProfileInvalidator, dispatcher events.Dispatcher, logger *zap.Logger) *MergeResolver {
	return &MergeResolver{
		store:      store,
		profiles:   profiles,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run scans the graph for emails owned by more than one active identity and
// collapses each equivalence class independently.
func (m *MergeResolver) Run(ctx context.Context) (*MergeReport, error) {
	conflicts, err := m.store.EmailsWithMultipleOwners(ctx)
	if err != nil {
		return nil, err
	}

	report := &MergeReport{}
	for email, owners := range conflicts {
		classReport, err := m.MergeClass(ctx, email, owners)
		if err != nil {
			return report, err
		}
		if classReport.MergedIdentities > 0 {
			report.Classes++
			report.MergedIdentities += classReport.MergedIdentities
			report.MovedLinks += classReport.MovedLinks
			report.SupersededLinks += classReport.SupersededLinks
		}
	}

	m.logger.Info("merge pass complete",
		zap.Int("classes", report.Classes),
		zap.Int("merged_identities", report.MergedIdentities),
		zap.Int("moved_links", report.MovedLinks))
	return report, nil
}

// MergeClass collapses one shared-email equivalence class. The survivor is
// the lexicographically smallest active canonical ID in the class; every
// other identity has its links re-pointed onto the survivor (pairs the
// survivor already owns are retired instead) and is then deactivated with
// mergedInto set to the survivor. Already-merged members are substituted
// with their survivors, so re-running on the same class is a no-op.
func (m *MergeResolver) MergeClass(ctx context.Context, email string, ids []string) (*MergeReport, error) {
	report := &MergeReport{}

	active, err := m.activeMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(active) < 2 {
		return report, nil
	}

	survivor := active[0]
	losers := active[1:]
	merged := make([]string, 0, len(losers))

	for _, loser := range losers {
		moved, superseded, err := m.store.MoveLinks(ctx, loser, survivor)
		if err != nil {
			return report, err
		}
		if err := m.store.Deactivate(ctx, loser, survivor); err != nil {
			return report, err
		}
		report.MergedIdentities++
		report.MovedLinks += moved
		report.SupersededLinks += superseded
		merged = append(merged, loser)

		m.logger.Info("identity merged",
			zap.String("survivor", survivor),
			zap.String("merged", loser),
			zap.Int("moved_links", moved),
			zap.Int("superseded_links", superseded))
	}

	// Stale cached profiles on either side of the merge are now wrong.
	if m.profiles != nil {
		m.profiles.Invalidate(ctx, append(merged, survivor)...)
	}

	m.publish(ctx, events.Event{
		Type:        events.EventIdentityMerged,
		CanonicalID: survivor,
		PerformedBy: "merge_resolver",
		Payload: events.IdentityMergedPayload{
			MergedIDs:  merged,
			Reason:     mergeReasonEmailMatch,
			MovedLinks: report.MovedLinks,
		},
	})
	return report, nil
}

// activeMembers maps class members to their living identities (following a
// mergedInto hop for members merged earlier), dedupes, and sorts ascending
// so survivor selection is deterministic.
func (m *MergeResolver) activeMembers(ctx context.Context, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	var active []string
	for _, id := range ids {
		identity, err := m.store.GetIdentity(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !identity.Active {
			if identity.MergedInto == nil {
				continue
			}
			identity, err = m.store.GetIdentity(ctx, *identity.MergedInto)
			if err != nil || !identity.Active {
				continue
			}
		}
		if _, dup := seen[identity.ID]; dup {
			continue
		}
		seen[identity.ID] = struct{}{}
		active = append(active, identity.ID)
	}
	sort.Strings(active)
	return active, nil
}

func (m *MergeResolver) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = m.dispatcher.Publish(ctx, event)
}
