// Package cleanup analyzes and removes everything hanging off a
// manuscript: its reviewer pool, their history rows, queue slots, and
// invitations. Analysis is a pure read; deletion walks categories in
// dependency order and tolerates partial failure.
package cleanup

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/store"
)

// Progress is one step report surfaced to the caller, keyed by the
// phase it belongs to.
type Progress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

type ProgressFunc func(Progress)

const (
	PhaseResolve   = "resolving manuscript"
	PhaseReviewers = "loading reviewers"
	PhaseShared    = "checking cross-manuscript matches"
	PhaseCount     = "counting linked records"
	PhaseDelete    = "deleting"
)

// SharedReviewer is a reviewer the manuscript shares with at least one
// other manuscript. Deleting such a reviewer would strand those
// manuscripts, so callers must confirm before cleanup touches them.
type SharedReviewer struct {
	Reviewer         domain.PotentialReviewer `json:"reviewer"`
	OtherManuscripts []domain.Manuscript      `json:"otherManuscripts"`
}

// ImpactStats counts the rows a cleanup of this manuscript would reach.
type ImpactStats struct {
	Manuscripts        int64 `json:"manuscripts"`
	Reviewers          int64 `json:"reviewers"`
	Matches            int64 `json:"matches"`
	Invitations        int64 `json:"invitations"`
	QueueItems         int64 `json:"queueItems"`
	Publications       int64 `json:"publications"`
	Retractions        int64 `json:"retractions"`
	PublicationMatches int64 `json:"publicationMatches"`
	Assignments        int64 `json:"assignments"`
}

// ImpactReport is the read-only result of AnalyzeImpact.
type ImpactReport struct {
	Manuscript      domain.Manuscript          `json:"manuscript"`
	Reviewers       []domain.PotentialReviewer `json:"reviewers"`
	SharedReviewers []SharedReviewer           `json:"sharedReviewers"`
	Stats           ImpactStats                `json:"stats"`
}

// Analyzer computes cleanup impact without writing anything.
type Analyzer struct {
	store store.Store
}

func NewAnalyzer(s store.Store) *Analyzer {
	return &Analyzer{store: s}
}

// AnalyzeImpact resolves the manuscript by any identifier form, loads
// its reviewer pool, flags reviewers shared with other manuscripts, and
// counts every linked record category. Phases run sequentially;
// category counts inside the final phase run concurrently.
func (a *Analyzer) AnalyzeImpact(ctx context.Context, identifier string, onProgress ProgressFunc) (ImpactReport, error) {
	report := func(phase, msg string) {
		if onProgress != nil {
			onProgress(Progress{Phase: phase, Message: msg})
		}
	}

	report(PhaseResolve, fmt.Sprintf("looking up %q", identifier))
	ms, err := a.store.FindManuscript(ctx, identifier)
	if err != nil {
		return ImpactReport{}, err
	}
	report(PhaseResolve, fmt.Sprintf("found %q (%s)", ms.Title, ms.ID))

	report(PhaseReviewers, "loading matched reviewers")
	matches, err := a.store.ListMatchesByManuscript(ctx, ms.ID)
	if err != nil {
		return ImpactReport{}, fmt.Errorf("list matches: %w", err)
	}
	reviewerIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		reviewerIDs = append(reviewerIDs, m.ReviewerID)
	}
	reviewers, err := a.store.ListReviewers(ctx, reviewerIDs)
	if err != nil {
		return ImpactReport{}, fmt.Errorf("list reviewers: %w", err)
	}
	report(PhaseReviewers, fmt.Sprintf("%d reviewers matched", len(reviewers)))

	report(PhaseShared, "probing other manuscripts")
	shared, err := a.sharedReviewers(ctx, ms.ID, reviewerIDs, reviewers)
	if err != nil {
		return ImpactReport{}, err
	}
	report(PhaseShared, fmt.Sprintf("%d reviewers shared with other manuscripts", len(shared)))

	report(PhaseCount, "counting linked records")
	stats, err := a.countStats(ctx, ms.ID, reviewerIDs)
	if err != nil {
		return ImpactReport{}, err
	}
	stats.Manuscripts = 1
	stats.Reviewers = int64(len(reviewers))

	return ImpactReport{
		Manuscript:      ms,
		Reviewers:       reviewers,
		SharedReviewers: shared,
		Stats:           stats,
	}, nil
}

func (a *Analyzer) sharedReviewers(ctx context.Context, manuscriptID string, reviewerIDs []string, reviewers []domain.PotentialReviewer) ([]SharedReviewer, error) {
	if len(reviewerIDs) == 0 {
		return nil, nil
	}
	foreign, err := a.store.ListMatchesByReviewers(ctx, reviewerIDs, manuscriptID)
	if err != nil {
		return nil, fmt.Errorf("list foreign matches: %w", err)
	}
	if len(foreign) == 0 {
		return nil, nil
	}

	otherByReviewer := make(map[string][]string)
	manuscriptIDs := make(map[string]struct{})
	for _, m := range foreign {
		otherByReviewer[m.ReviewerID] = append(otherByReviewer[m.ReviewerID], m.ManuscriptID)
		manuscriptIDs[m.ManuscriptID] = struct{}{}
	}
	ids := make([]string, 0, len(manuscriptIDs))
	for id := range manuscriptIDs {
		ids = append(ids, id)
	}
	others, err := a.store.ListManuscripts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list other manuscripts: %w", err)
	}
	byID := make(map[string]domain.Manuscript, len(others))
	for _, ms := range others {
		byID[ms.ID] = ms
	}

	var shared []SharedReviewer
	for _, r := range reviewers {
		otherIDs, ok := otherByReviewer[r.ID]
		if !ok {
			continue
		}
		sr := SharedReviewer{Reviewer: r}
		for _, id := range otherIDs {
			if ms, ok := byID[id]; ok {
				sr.OtherManuscripts = append(sr.OtherManuscripts, ms)
			}
		}
		sort.Slice(sr.OtherManuscripts, func(i, j int) bool {
			return sr.OtherManuscripts[i].ID < sr.OtherManuscripts[j].ID
		})
		shared = append(shared, sr)
	}
	return shared, nil
}

func (a *Analyzer) countStats(ctx context.Context, manuscriptID string, reviewerIDs []string) (ImpactStats, error) {
	var stats ImpactStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Matches, err = a.store.CountMatchesByReviewers(gctx, reviewerIDs)
		return
	})
	g.Go(func() (err error) {
		stats.Invitations, err = a.store.CountInvitationsByReviewers(gctx, reviewerIDs)
		return
	})
	g.Go(func() (err error) {
		stats.QueueItems, err = a.store.CountQueueItemsByReviewers(gctx, reviewerIDs)
		return
	})
	g.Go(func() (err error) {
		stats.Publications, err = a.store.CountPublicationsByReviewers(gctx, reviewerIDs)
		return
	})
	g.Go(func() (err error) {
		stats.Retractions, err = a.store.CountRetractionsByReviewers(gctx, reviewerIDs)
		return
	})
	g.Go(func() (err error) {
		stats.PublicationMatches, err = a.store.CountPublicationMatches(gctx, manuscriptID)
		return
	})
	g.Go(func() (err error) {
		stats.Assignments, err = a.store.CountAssignments(gctx, manuscriptID)
		return
	})
	if err := g.Wait(); err != nil {
		return ImpactStats{}, fmt.Errorf("count linked records: %w", err)
	}
	return stats, nil
}
