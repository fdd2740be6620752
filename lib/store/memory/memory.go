// Package memory implements the store interface in process memory, for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tarancss/safesave/lib/store"
)

// Memory keeps groups and watcher states in maps.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]store.Group
	watch  map[string]store.WatchState
	now    func() time.Time
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		groups: make(map[string]store.Group),
		watch:  make(map[string]store.WatchState),
		now:    time.Now,
	}
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// CreateGroup stores g, filling its id, code and timestamps.
func (m *Memory) CreateGroup(_ context.Context, g *store.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g.Prepare(m.now())

	for _, o := range m.groups {
		if o.ID == g.ID || strings.EqualFold(o.Name, g.Name) || o.Code == g.Code {
			return store.ErrDuplicate
		}
	}

	for _, w := range g.Wallets() {
		if m.inGroup(w) {
			return store.ErrInGroup
		}
	}

	m.groups[g.ID] = clone(*g)

	return nil
}

// Groups returns all the groups sorted by creation time.
func (m *Memory) Groups(_ context.Context) ([]store.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gs := make([]store.Group, 0, len(m.groups))
	for _, g := range m.groups {
		gs = append(gs, clone(g))
	}

	sort.Slice(gs, func(i, j int) bool {
		if gs[i].CreatedAt.Equal(gs[j].CreatedAt) {
			return gs[i].Name < gs[j].Name
		}

		return gs[i].CreatedAt.Before(gs[j].CreatedAt)
	})

	return gs, nil
}

// Group returns the group with the given id.
func (m *Memory) Group(_ context.Context, id string) (store.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[id]
	if !ok {
		return store.Group{}, store.ErrDataNotFound
	}

	return clone(g), nil
}

// GroupByCode returns the group with the given join code, case insensitive.
func (m *Memory) GroupByCode(_ context.Context, code string) (store.Group, error) {
	return m.find(func(g *store.Group) bool { return g.Code == strings.ToUpper(code) })
}

// GroupOf returns the group wallet is a member of or has asked to join.
func (m *Memory) GroupOf(_ context.Context, wallet string) (store.Group, error) {
	return m.find(func(g *store.Group) bool { return g.HasMember(wallet) || g.IsPending(wallet) })
}

func (m *Memory) find(f func(*store.Group) bool) (store.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.groups {
		if f(&g) {
			return clone(g), nil
		}
	}

	return store.Group{}, store.ErrDataNotFound
}

// UpdateGroup writes the settings of g and reloads it.
func (m *Memory) UpdateGroup(_ context.Context, g *store.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.groups[g.ID]
	if !ok {
		return store.ErrDataNotFound
	}

	for _, o := range m.groups {
		if o.ID != g.ID && (strings.EqualFold(o.Name, g.Name) || o.Code == g.Code) {
			return store.ErrDuplicate
		}
	}

	cur.Name, cur.Code, cur.SavingsGoal, cur.CurrentSavings, cur.IsActive = g.Name, g.Code, g.SavingsGoal,
		g.CurrentSavings, g.IsActive
	cur.UpdatedAt = m.now()
	m.groups[g.ID] = cur
	*g = clone(cur)

	return nil
}

// RequestJoin files a pending request of wallet to the group with the given join code.
func (m *Memory) RequestJoin(_ context.Context, code, wallet string) (store.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = strings.ToUpper(code)

	for id, g := range m.groups {
		if g.Code != code {
			continue
		}

		if m.inGroup(wallet) {
			return store.Group{}, store.ErrInGroup
		}

		g.Pending = append(clone(g).Pending, wallet)
		g.UpdatedAt = m.now()
		m.groups[id] = g

		return clone(g), nil
	}

	return store.Group{}, store.ErrDataNotFound
}

// Approve moves the pending request of wallet to the members.
func (m *Memory) Approve(_ context.Context, id, wallet string) (store.Group, error) {
	return m.change(id, func(g *store.Group) error {
		if !g.Approve(wallet) {
			return store.ErrNotPending
		}

		return nil
	})
}

// Reject drops the pending request of wallet.
func (m *Memory) Reject(_ context.Context, id, wallet string) (store.Group, error) {
	return m.change(id, func(g *store.Group) error {
		if !g.Reject(wallet) {
			return store.ErrNotPending
		}

		return nil
	})
}

// RemoveMember drops wallet from the members and pending requests of the group.
func (m *Memory) RemoveMember(_ context.Context, id, wallet string) error {
	_, err := m.change(id, func(g *store.Group) error {
		if !g.Remove(wallet) {
			return store.ErrDataNotFound
		}

		return nil
	})

	return err
}

// change applies f to a copy of the group and stores it if f succeeds.
func (m *Memory) change(id string, f func(*store.Group) error) (store.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok {
		return store.Group{}, store.ErrDataNotFound
	}

	g = clone(g)
	if err := f(&g); err != nil {
		return store.Group{}, err
	}

	g.UpdatedAt = m.now()
	m.groups[id] = g

	return clone(g), nil
}

// inGroup reports whether wallet is a member or has a pending request in any group. Callers hold the lock.
func (m *Memory) inGroup(wallet string) bool {
	for _, g := range m.groups {
		if g.HasMember(wallet) || g.IsPending(wallet) {
			return true
		}
	}

	return false
}

// DeleteGroup removes the group with the given id.
func (m *Memory) DeleteGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[id]; !ok {
		return store.ErrDataNotFound
	}

	delete(m.groups, id)

	return nil
}

// LoadWatch returns the watcher state saved for contract.
func (m *Memory) LoadWatch(_ context.Context, contract string) (store.WatchState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.watch[contract]
	if !ok {
		return store.WatchState{}, store.ErrDataNotFound
	}

	return cloneWatch(ws), nil
}

// SaveWatch saves the watcher state of contract.
func (m *Memory) SaveWatch(_ context.Context, contract string, ws store.WatchState) error {
	m.mu.Lock()
	m.watch[contract] = cloneWatch(ws)
	m.mu.Unlock()

	return nil
}

func clone(g store.Group) store.Group {
	g.Members = append([]string{}, g.Members...)
	g.Pending = append([]string{}, g.Pending...)

	return g
}

func cloneWatch(ws store.WatchState) store.WatchState {
	ws.Tips = append([]string{}, ws.Tips...)

	u := make(map[string]string, len(ws.Utxos))
	for k, v := range ws.Utxos {
		u[k] = v
	}

	ws.Utxos = u

	return ws
}
