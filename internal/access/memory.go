package access

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// InMemory implements Repository with in-process concurrency safety.
// Each method holds the lock for its whole read-modify-write, which gives the
// same atomicity the SQL store gets from single statements.
type InMemory struct {
	mu        sync.RWMutex
	users     map[int64]*User
	passages  map[int64]Passage
	grants    map[[2]int64]time.Time
	transits  []Transit
	nextBadge int64
	nextID    int64
}

var _ Repository = (*InMemory)(nil)

// NewInMemory creates an empty repository.
func NewInMemory() *InMemory {
	return &InMemory{
		users:    make(map[int64]*User),
		passages: make(map[int64]Passage),
		grants:   make(map[[2]int64]time.Time),
	}
}

// PutPassage inserts or replaces a passage.
func (s *InMemory) PutPassage(p Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages[p.ID] = p
}

// PutUser inserts or replaces a user keyed by badge.
func (s *InMemory) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putUserLocked(u)
}

func (s *InMemory) putUserLocked(u User) {
	cp := u
	if u.PassageReference != nil {
		ref := *u.PassageReference
		cp.PassageReference = &ref
	}
	if u.SuspendedAt != nil {
		at := *u.SuspendedAt
		cp.SuspendedAt = &at
	}
	s.users[u.Badge] = &cp
	if u.Badge > s.nextBadge {
		s.nextBadge = u.Badge
	}
}

func (s *InMemory) Ping(ctx context.Context) error { return nil }

func (s *InMemory) FindUser(ctx context.Context, badge int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[badge]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *InMemory) FindUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *InMemory) ListUsers(ctx context.Context, badges []int64) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if len(badges) > 0 && !slices.Contains(badges, u.Badge) {
			continue
		}
		out = append(out, copyUser(u))
	}
	sortUsers(out)
	return out, nil
}

func (s *InMemory) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *InMemory) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Badge == 0 {
		u.Badge = s.nextBadge + 1
	}
	if _, exists := s.users[u.Badge]; exists {
		return User{}, validationf("badge %d already exists", u.Badge)
	}
	s.putUserLocked(u)
	return copyUser(s.users[u.Badge]), nil
}

func (s *InMemory) IncrementUserCounter(ctx context.Context, badge int64, field CounterField) (int, error) {
	if field != CounterUnauthorizedAttempts {
		return 0, validationf("unknown counter %q", field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[badge]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.UnauthorizedAttempts++
	return u.UnauthorizedAttempts, nil
}

func (s *InMemory) SuspendUser(ctx context.Context, badge int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[badge]
	if !ok {
		return false, ErrUserNotFound
	}
	u.UnauthorizedAttempts = 0
	if u.IsSuspended {
		return false, nil
	}
	u.IsSuspended = true
	u.SuspendedAt = &at
	u.UpdatedAt = at
	return true, nil
}

func (s *InMemory) ReactivateUser(ctx context.Context, badge int64, observed, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[badge]
	if !ok {
		return false, ErrUserNotFound
	}
	if !u.IsSuspended || !u.UpdatedAt.Equal(observed) {
		return false, nil
	}
	u.IsSuspended = false
	u.SuspendedAt = nil
	u.UpdatedAt = at
	return true, nil
}

func (s *InMemory) ResetUsers(ctx context.Context, badges []int64, at time.Time) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []User
	for _, u := range s.users {
		if !u.IsSuspended {
			continue
		}
		if len(badges) > 0 && !slices.Contains(badges, u.Badge) {
			continue
		}
		u.IsSuspended = false
		u.UnauthorizedAttempts = 0
		u.SuspendedAt = nil
		u.UpdatedAt = at
		out = append(out, copyUser(u))
	}
	sortUsers(out)
	return out, nil
}

func (s *InMemory) FindAllSuspendedUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.IsSuspended {
			out = append(out, copyUser(u))
		}
	}
	sortUsers(out)
	return out, nil
}

func (s *InMemory) FindPassage(ctx context.Context, id int64) (Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passages[id]
	if !ok {
		return Passage{}, ErrPassageNotFound
	}
	return p, nil
}

func (s *InMemory) FindAuthorization(ctx context.Context, badge, passage int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[[2]int64{badge, passage}]
	return ok, nil
}

func (s *InMemory) CreateAuthorization(ctx context.Context, a Authorization) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.Badge]; !ok {
		return Authorization{}, ErrUserNotFound
	}
	if _, ok := s.passages[a.Passage]; !ok {
		return Authorization{}, ErrPassageNotFound
	}
	key := [2]int64{a.Badge, a.Passage}
	if _, ok := s.grants[key]; ok {
		return Authorization{}, ErrAuthorizationConflict
	}
	s.grants[key] = a.CreatedAt
	return a, nil
}

func (s *InMemory) DeleteAuthorization(ctx context.Context, badge, passage int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{badge, passage}
	if _, ok := s.grants[key]; !ok {
		return ErrAuthorizationNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *InMemory) CreateTransit(ctx context.Context, t Transit) (Transit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[t.Badge]; !ok {
		return Transit{}, ErrUserNotFound
	}
	if _, ok := s.passages[t.Passage]; !ok {
		return Transit{}, ErrPassageNotFound
	}
	s.nextID++
	t.ID = s.nextID
	s.transits = append(s.transits, t)
	return t, nil
}

func (s *InMemory) GetTransit(ctx context.Context, id int64) (Transit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Transit{}, ErrTransitNotFound
	}
	return s.transits[i], nil
}

func (s *InMemory) UpdateTransit(ctx context.Context, id int64, patch TransitPatch) (Transit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Transit{}, ErrTransitNotFound
	}
	if patch.TransitDate != nil {
		s.transits[i].TransitDate = *patch.TransitDate
	}
	if patch.ViolationDPI != nil {
		s.transits[i].ViolationDPI = *patch.ViolationDPI
	}
	return s.transits[i], nil
}

func (s *InMemory) DeleteTransit(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrTransitNotFound
	}
	s.transits = slices.Delete(s.transits, i, i+1)
	return nil
}

func (s *InMemory) FindTransits(ctx context.Context, f TransitFilter) ([]Transit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Transit{}
	for _, t := range s.transits {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b Transit) int {
		if c := a.TransitDate.Compare(b.TransitDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemory) indexOf(id int64) int {
	for i := range s.transits {
		if s.transits[i].ID == id {
			return i
		}
	}
	return -1
}

func copyUser(u *User) User {
	out := *u
	if u.PassageReference != nil {
		ref := *u.PassageReference
		out.PassageReference = &ref
	}
	if u.SuspendedAt != nil {
		at := *u.SuspendedAt
		out.SuspendedAt = &at
	}
	return out
}

func sortUsers(us []User) {
	slices.SortFunc(us, func(a, b User) int { return cmp.Compare(a.Badge, b.Badge) })
}
