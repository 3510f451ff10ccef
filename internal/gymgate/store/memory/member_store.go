package memory

import (
	"context"
	"sync"

	"github.com/muscleupgym/gymgate/internal/gymgate/store"
)

// MemberStore is an in-memory implementation of store.MemberStore for
// tests and dev environments. Fixtures are added with the Put* helpers;
// error fields let tests simulate infrastructure failures per lookup.
type MemberStore struct {
	mu           sync.RWMutex
	identities   map[int]store.MemberIdentity
	memberships  map[string][]store.MembershipInfo // by user id
	restrictions map[string]store.Restriction      // by plan id

	IdentityErr    error
	MembershipErr  error
	RestrictionErr error
}

func NewMemberStore() *MemberStore {
	return &MemberStore{
		identities:   make(map[int]store.MemberIdentity),
		memberships:  make(map[string][]store.MembershipInfo),
		restrictions: make(map[string]store.Restriction),
	}
}

func (s *MemberStore) PutIdentity(m store.MemberIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[m.DeviceUserID] = m
}

func (s *MemberStore) PutMembership(userID string, mi store.MembershipInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[userID] = append(s.memberships[userID], mi)
}

func (s *MemberStore) PutRestriction(planID string, r store.Restriction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restrictions[planID] = r
}

func (s *MemberStore) FindByDeviceUserID(_ context.Context, deviceUserID int) (store.MemberIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.IdentityErr != nil {
		return store.MemberIdentity{}, s.IdentityErr
	}
	m, ok := s.identities[deviceUserID]
	if !ok {
		return store.MemberIdentity{}, store.ErrNotFound
	}
	return m, nil
}

func (s *MemberStore) LatestActiveMembership(_ context.Context, userID string) (store.MembershipInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.MembershipErr != nil {
		return store.MembershipInfo{}, s.MembershipErr
	}

	var (
		best  store.MembershipInfo
		found bool
	)
	for _, mi := range s.memberships[userID] {
		if mi.Status != "active" {
			continue
		}
		// Civil dates are 'YYYY-MM-DD', so lexical order is date order.
		if !found || mi.EndDate > best.EndDate {
			best = mi
			found = true
		}
	}
	if !found {
		return store.MembershipInfo{}, store.ErrNotFound
	}
	return best, nil
}

func (s *MemberStore) PlanRestriction(_ context.Context, planID string) (store.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.RestrictionErr != nil {
		return store.Restriction{}, s.RestrictionErr
	}
	r, ok := s.restrictions[planID]
	if !ok {
		return store.Restriction{}, store.ErrNotFound
	}
	return r, nil
}
