package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"papertrade/model"
)

// MemoryStore keeps everything in process. It is the default store and the
// reference the other drivers are tested against.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]model.User
	emails    map[string]string // email -> user id
	holdings  map[string]model.Holding
	watchlist map[string]model.WatchlistEntry
	alerts    map[string]model.Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]model.User),
		emails:    make(map[string]string),
		holdings:  make(map[string]model.Holding),
		watchlist: make(map[string]model.WatchlistEntry),
		alerts:    make(map[string]model.Alert),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[u.Email]; ok {
		return ErrDuplicate
	}
	s.users[u.ID] = *u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return s.users[id], nil
}

func (s *MemoryStore) Holdings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Holding{}
	for _, h := range s.holdings {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.Before(out[j].PurchaseDate) })
	return out, nil
}

func (s *MemoryStore) Holding(_ context.Context, userID, symbol string) (model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.holdings {
		if h.UserID == userID && h.Symbol == symbol {
			return h, nil
		}
	}
	return model.Holding{}, ErrNotFound
}

func (s *MemoryStore) CommitTrade(_ context.Context, userID string, balance float64, h model.Holding, remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Balance = balance
	s.users[userID] = u

	if remove {
		delete(s.holdings, h.ID)
	} else {
		s.holdings[h.ID] = h
	}
	return nil
}

func (s *MemoryStore) Watchlist(_ context.Context, userID string) ([]model.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.WatchlistEntry{}
	for _, e := range s.watchlist {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out, nil
}

func (s *MemoryStore) AddWatchlist(_ context.Context, e *model.WatchlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.watchlist {
		if existing.UserID == e.UserID && existing.Symbol == e.Symbol {
			return ErrDuplicate
		}
	}
	s.watchlist[e.ID] = *e
	return nil
}

func (s *MemoryStore) RemoveWatchlist(_ context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.watchlist {
		if e.UserID == userID && e.Symbol == symbol {
			delete(s.watchlist, id)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) InWatchlist(_ context.Context, userID, symbol string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.watchlist {
		if e.UserID == userID && e.Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Alerts(_ context.Context, userID string) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Alert{}
	for _, a := range s.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return ErrDuplicate
	}
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryStore) UpdateAlert(_ context.Context, userID, id string, patch AlertPatch) (model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != userID {
		return model.Alert{}, ErrNotFound
	}
	if patch.IsActive != nil {
		a.IsActive = *patch.IsActive
	}
	if patch.Triggered != nil {
		a.Triggered = *patch.Triggered
	}
	a.UpdatedAt = time.Now().UTC()
	s.alerts[id] = a
	return a, nil
}

func (s *MemoryStore) DeleteAlert(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(s.alerts, id)
	return nil
}

func (s *MemoryStore) CountActiveAlerts(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.UserID == userID && a.Armed() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
