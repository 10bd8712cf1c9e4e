package cleanup

import (
	"context"
	"testing"
	"time"

	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/store"
)

// seedTwoManuscripts builds the shared-reviewer fixture: manuscript A
// (custom id 7832738) with reviewers r1 and r2, manuscript B (custom id
// 9912345) also matched to r1. r1 is shared, r2 is exclusive to A.
func seedTwoManuscripts(t *testing.T, s *store.MemoryStore) (domain.Manuscript, domain.Manuscript) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	msA := domain.Manuscript{
		ID:       "aaaaaaaa-1111-2222-3333-444444444444",
		CustomID: "7832738",
		Title:    "Graphene lattice defects",
		Status:   domain.ManuscriptUnderReview,
	}
	msB := domain.Manuscript{
		ID:       "bbbbbbbb-1111-2222-3333-444444444444",
		CustomID: "9912345",
		Title:    "Polymer self-assembly",
		Status:   domain.ManuscriptUnderReview,
	}
	for _, ms := range []domain.Manuscript{msA, msB} {
		if err := s.SaveManuscript(ctx, ms); err != nil {
			t.Fatalf("save manuscript: %v", err)
		}
	}

	for _, r := range []domain.PotentialReviewer{
		{ID: "r1", Name: "Shared Reviewer", Email: "r1@example.org"},
		{ID: "r2", Name: "Exclusive Reviewer", Email: "r2@example.org"},
	} {
		if err := s.SaveReviewer(ctx, r); err != nil {
			t.Fatalf("save reviewer: %v", err)
		}
	}

	for _, m := range []domain.Match{
		{ID: "m1", ManuscriptID: msA.ID, ReviewerID: "r1", Score: 0.9},
		{ID: "m2", ManuscriptID: msA.ID, ReviewerID: "r2", Score: 0.8},
		{ID: "m3", ManuscriptID: msB.ID, ReviewerID: "r1", Score: 0.7},
	} {
		if err := s.SaveMatch(ctx, m); err != nil {
			t.Fatalf("save match: %v", err)
		}
	}

	inv := domain.ReviewInvitation{ID: "i1", ManuscriptID: msA.ID, ReviewerID: "r2", Status: domain.InvitationPending, InvitedDate: now, Round: 1}
	if err := s.InsertInvitation(ctx, inv); err != nil {
		t.Fatalf("insert invitation: %v", err)
	}
	item := domain.QueueItem{ID: "q1", ManuscriptID: msA.ID, ReviewerID: "r1", Position: 0, ScheduledSendDate: now}
	if err := s.PutQueueOrder(ctx, msA.ID, []domain.QueueItem{item}, 0); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if err := s.SavePublication(ctx, domain.Publication{ID: "p1", ReviewerID: "r1", Title: "Prior work", Year: 2019}); err != nil {
		t.Fatalf("save publication: %v", err)
	}
	if err := s.SaveRetraction(ctx, domain.Retraction{ID: "rt1", ReviewerID: "r2", Title: "Withdrawn result"}); err != nil {
		t.Fatalf("save retraction: %v", err)
	}
	if err := s.SavePublicationMatch(ctx, domain.PublicationMatch{ID: "pm1", ManuscriptID: msA.ID, DOI: "10.1/abc"}); err != nil {
		t.Fatalf("save publication match: %v", err)
	}
	if err := s.SaveAssignment(ctx, domain.Assignment{ID: "a1", UserID: "u1", ManuscriptID: msA.ID, Role: domain.RoleEditor, IsActive: true}); err != nil {
		t.Fatalf("save assignment: %v", err)
	}
	return msA, msB
}

func TestAnalyzeImpactSharedReviewer(t *testing.T) {
	s := store.NewMemoryStore()
	_, msB := seedTwoManuscripts(t, s)
	a := NewAnalyzer(s)
	ctx := context.Background()

	var phases []string
	report, err := a.AnalyzeImpact(ctx, "7832738", func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.Manuscript.CustomID != "7832738" {
		t.Fatalf("resolved wrong manuscript: %+v", report.Manuscript)
	}
	if len(report.Reviewers) != 2 {
		t.Fatalf("got %d reviewers, want 2", len(report.Reviewers))
	}
	if len(report.SharedReviewers) != 1 {
		t.Fatalf("got %d shared reviewers, want 1", len(report.SharedReviewers))
	}
	shared := report.SharedReviewers[0]
	if shared.Reviewer.ID != "r1" {
		t.Fatalf("shared reviewer = %q, want r1", shared.Reviewer.ID)
	}
	if len(shared.OtherManuscripts) != 1 || shared.OtherManuscripts[0].ID != msB.ID {
		t.Fatalf("other manuscripts = %+v", shared.OtherManuscripts)
	}

	want := ImpactStats{
		Manuscripts:        1,
		Reviewers:          2,
		Matches:            3, // r1 on both manuscripts, r2 on one
		Invitations:        1,
		QueueItems:         1,
		Publications:       1,
		Retractions:        1,
		PublicationMatches: 1,
		Assignments:        1,
	}
	if report.Stats != want {
		t.Fatalf("stats = %+v, want %+v", report.Stats, want)
	}

	wantPhases := []string{PhaseResolve, PhaseReviewers, PhaseShared, PhaseCount}
	if len(phases) != len(wantPhases) {
		t.Fatalf("phases = %v", phases)
	}
	for i, p := range wantPhases {
		if phases[i] != p {
			t.Fatalf("phase %d = %q, want %q", i, phases[i], p)
		}
	}
}

func TestAnalyzeImpactIsPureRead(t *testing.T) {
	s := store.NewMemoryStore()
	seedTwoManuscripts(t, s)
	a := NewAnalyzer(s)
	ctx := context.Background()

	first, err := a.AnalyzeImpact(ctx, "7832738", nil)
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := a.AnalyzeImpact(ctx, "7832738", nil)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if first.Stats != second.Stats {
		t.Fatalf("repeated analysis diverged: %+v vs %+v", first.Stats, second.Stats)
	}
	if len(first.Reviewers) != len(second.Reviewers) {
		t.Fatalf("reviewer pool changed between reads")
	}
}

func TestAnalyzeImpactUnknownManuscript(t *testing.T) {
	s := store.NewMemoryStore()
	a := NewAnalyzer(s)
	if _, err := a.AnalyzeImpact(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected resolution failure")
	}
}
