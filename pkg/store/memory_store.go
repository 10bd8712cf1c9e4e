package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reviewdesk/pkg/domain"
)

// MemoryStore keeps all entities in-process. It backs engine tests and
// mirrors GormStore semantics, including the queue version check.
type MemoryStore struct {
	mu          sync.RWMutex
	manuscripts map[string]domain.Manuscript
	reviewers   map[string]domain.PotentialReviewer
	matches     map[string]domain.Match
	invitations map[string]domain.ReviewInvitation
	queueItems  map[string]domain.QueueItem
	controls    map[string]domain.QueueControl
	pubs        map[string]domain.Publication
	retractions map[string]domain.Retraction
	pubMatches  map[string]domain.PublicationMatch
	assignments map[string]domain.Assignment
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manuscripts: make(map[string]domain.Manuscript),
		reviewers:   make(map[string]domain.PotentialReviewer),
		matches:     make(map[string]domain.Match),
		invitations: make(map[string]domain.ReviewInvitation),
		queueItems:  make(map[string]domain.QueueItem),
		controls:    make(map[string]domain.QueueControl),
		pubs:        make(map[string]domain.Publication),
		retractions: make(map[string]domain.Retraction),
		pubMatches:  make(map[string]domain.PublicationMatch),
		assignments: make(map[string]domain.Assignment),
	}
}

func (m *MemoryStore) FindManuscript(ctx context.Context, identifier string) (domain.Manuscript, error) {
	if err := ctx.Err(); err != nil {
		return domain.Manuscript{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	isUUID := false
	if _, err := uuid.Parse(identifier); err == nil {
		isUUID = true
	}
	if isUUID {
		if ms, ok := m.manuscripts[identifier]; ok {
			return ms, nil
		}
	}
	for _, ms := range m.manuscripts {
		if ms.CustomID != "" && ms.CustomID == identifier {
			return ms, nil
		}
	}
	if isUUID {
		for _, ms := range m.manuscripts {
			if ms.SystemID == identifier || ms.SubmissionID == identifier {
				return ms, nil
			}
		}
	}
	return domain.Manuscript{}, ErrManuscriptNotFound
}

func (m *MemoryStore) ListManuscripts(ctx context.Context, ids []string) ([]domain.Manuscript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Manuscript, 0, len(ids))
	for _, id := range ids {
		if ms, ok := m.manuscripts[id]; ok {
			res = append(res, ms)
		}
	}
	return res, nil
}

func (m *MemoryStore) SaveManuscript(_ context.Context, ms domain.Manuscript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manuscripts[ms.ID] = ms
	return nil
}

func (m *MemoryStore) DeleteManuscript(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.manuscripts[id]; !ok {
		return 0, nil
	}
	delete(m.manuscripts, id)
	delete(m.controls, id)
	return 1, nil
}

func (m *MemoryStore) SaveReviewer(_ context.Context, r domain.PotentialReviewer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewers[r.ID] = r
	return nil
}

func (m *MemoryStore) ListReviewers(_ context.Context, ids []string) ([]domain.PotentialReviewer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PotentialReviewer, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.reviewers[id]; ok {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *MemoryStore) DeleteReviewers(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.reviewers[id]; ok {
			delete(m.reviewers, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveMatch(_ context.Context, match domain.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.matches {
		if existing.ID != match.ID && existing.ManuscriptID == match.ManuscriptID && existing.ReviewerID == match.ReviewerID {
			return ErrDuplicateMatch
		}
	}
	m.matches[match.ID] = match
	return nil
}

func (m *MemoryStore) ListMatchesByManuscript(_ context.Context, manuscriptID string) ([]domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Match
	for _, match := range m.matches {
		if match.ManuscriptID == manuscriptID {
			res = append(res, match)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Score > res[j].Score })
	return res, nil
}

func (m *MemoryStore) ListMatchesByReviewers(_ context.Context, reviewerIDs []string, excludeManuscriptID string) ([]domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := toSet(reviewerIDs)
	var res []domain.Match
	for _, match := range m.matches {
		if match.ManuscriptID == excludeManuscriptID {
			continue
		}
		if _, ok := set[match.ReviewerID]; ok {
			res = append(res, match)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) CountMatchesByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := toSet(reviewerIDs)
	var n int64
	for _, match := range m.matches {
		if _, ok := set[match.ReviewerID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteMatchesByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := toSet(reviewerIDs)
	var n int64
	for id, match := range m.matches {
		if _, ok := set[match.ReviewerID]; ok {
			delete(m.matches, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetInvitation(_ context.Context, id string) (domain.ReviewInvitation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invitations[id]
	return inv, ok, nil
}

func (m *MemoryStore) ListInvitationsByManuscript(_ context.Context, manuscriptID string) ([]domain.ReviewInvitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.ReviewInvitation
	for _, inv := range m.invitations {
		if inv.ManuscriptID == manuscriptID {
			res = append(res, inv)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].InvitedDate.After(res[j].InvitedDate) })
	return res, nil
}

func (m *MemoryStore) ActiveInvitation(_ context.Context, manuscriptID, reviewerID string) (domain.ReviewInvitation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.invitations {
		if inv.ManuscriptID == manuscriptID && inv.ReviewerID == reviewerID && !inv.Terminal() {
			return inv, true, nil
		}
	}
	return domain.ReviewInvitation{}, false, nil
}

func (m *MemoryStore) LatestRound(_ context.Context, manuscriptID, reviewerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	round := 0
	for _, inv := range m.invitations {
		if inv.ManuscriptID == manuscriptID && inv.ReviewerID == reviewerID && inv.Round > round {
			round = inv.Round
		}
	}
	return round, nil
}

func (m *MemoryStore) InsertInvitation(_ context.Context, inv domain.ReviewInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations[inv.ID] = inv
	return nil
}

func (m *MemoryStore) UpdateInvitation(_ context.Context, inv domain.ReviewInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[inv.ID]; !ok {
		return ErrInvitationNotFound
	}
	m.invitations[inv.ID] = inv
	return nil
}

func (m *MemoryStore) CountInvitationsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := toSet(reviewerIDs)
	var n int64
	for _, inv := range m.invitations {
		if _, ok := set[inv.ReviewerID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteInvitationsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := toSet(reviewerIDs)
	var n int64
	for id, inv := range m.invitations {
		if _, ok := set[inv.ReviewerID]; ok {
			delete(m.invitations, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) QueueState(_ context.Context, manuscriptID string) (QueueState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	control, ok := m.controls[manuscriptID]
	if !ok {
		control = domain.QueueControl{ManuscriptID: manuscriptID}
	}
	var items []domain.QueueItem
	for _, item := range m.queueItems {
		if item.ManuscriptID == manuscriptID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	state := QueueState{Control: control, Items: items}
	if len(items) > 0 {
		next := items[0].ScheduledSendDate
		state.Control.NextScheduledSend = &next
	}
	return state, nil
}

func (m *MemoryStore) PutQueueOrder(_ context.Context, manuscriptID string, items []domain.QueueItem, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	control, ok := m.controls[manuscriptID]
	if !ok {
		control = domain.QueueControl{ManuscriptID: manuscriptID}
	}
	if control.Version != expectedVersion {
		return ErrQueueConflict
	}
	for id, item := range m.queueItems {
		if item.ManuscriptID == manuscriptID {
			delete(m.queueItems, id)
		}
	}
	for _, item := range items {
		m.queueItems[item.ID] = item
	}
	control.Version++
	m.controls[manuscriptID] = control
	return nil
}

func (m *MemoryStore) SetQueueActive(_ context.Context, manuscriptID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	control, ok := m.controls[manuscriptID]
	if !ok {
		control = domain.QueueControl{ManuscriptID: manuscriptID}
	}
	control.Active = active
	m.controls[manuscriptID] = control
	return nil
}

func (m *MemoryStore) ActiveQueueManuscripts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, control := range m.controls {
		if control.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) CountQueueItemsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := toSet(reviewerIDs)
	var n int64
	for _, item := range m.queueItems {
		if _, ok := set[item.ReviewerID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteQueueItemsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := toSet(reviewerIDs)
	var n int64
	for id, item := range m.queueItems {
		if _, ok := set[item.ReviewerID]; ok {
			delete(m.queueItems, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SavePublication(_ context.Context, p domain.Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubs[p.ID] = p
	return nil
}

func (m *MemoryStore) SaveRetraction(_ context.Context, r domain.Retraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retractions[r.ID] = r
	return nil
}

func (m *MemoryStore) CountPublicationsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := toSet(reviewerIDs)
	var n int64
	for _, p := range m.pubs {
		if _, ok := set[p.ReviewerID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeletePublicationsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := toSet(reviewerIDs)
	var n int64
	for id, p := range m.pubs {
		if _, ok := set[p.ReviewerID]; ok {
			delete(m.pubs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountRetractionsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := toSet(reviewerIDs)
	var n int64
	for _, r := range m.retractions {
		if _, ok := set[r.ReviewerID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteRetractionsByReviewers(_ context.Context, reviewerIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := toSet(reviewerIDs)
	var n int64
	for id, r := range m.retractions {
		if _, ok := set[r.ReviewerID]; ok {
			delete(m.retractions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SavePublicationMatch(_ context.Context, pm domain.PublicationMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubMatches[pm.ID] = pm
	return nil
}

func (m *MemoryStore) CountPublicationMatches(_ context.Context, manuscriptID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, pm := range m.pubMatches {
		if pm.ManuscriptID == manuscriptID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeletePublicationMatches(_ context.Context, manuscriptID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, pm := range m.pubMatches {
		if pm.ManuscriptID == manuscriptID {
			delete(m.pubMatches, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveAssignment(_ context.Context, a domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *MemoryStore) CountAssignments(_ context.Context, manuscriptID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, a := range m.assignments {
		if a.ManuscriptID == manuscriptID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteAssignments(_ context.Context, manuscriptID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.assignments {
		if a.ManuscriptID == manuscriptID {
			delete(m.assignments, id)
			n++
		}
	}
	return n, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
