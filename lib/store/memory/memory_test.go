package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/safesave/lib/store"
)

func TestGroups(t *testing.T) {
	ctx := context.Background()
	m := New()

	g := &store.Group{Name: "Ikimina Kigali", Admin: "addr_admin", Members: []string{"addr_admin"}, SavingsGoal: 1000}
	require.NoError(t, m.CreateGroup(ctx, g))
	assert.NotEmpty(t, g.ID)
	assert.Len(t, g.Code, store.CodeLen)
	assert.False(t, g.CreatedAt.IsZero())

	// names and codes are unique
	assert.ErrorIs(t, m.CreateGroup(ctx, &store.Group{Name: "ikimina kigali"}), store.ErrDuplicate)
	assert.ErrorIs(t, m.CreateGroup(ctx, &store.Group{Name: "Other", Code: g.Code}), store.ErrDuplicate)
	// a wallet belongs to one group
	assert.ErrorIs(t, m.CreateGroup(ctx, &store.Group{Name: "Other", Admin: "addr_admin",
		Members: []string{"addr_admin"}}), store.ErrInGroup)

	got, err := m.GroupByCode(ctx, g.Code)
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)

	_, err = m.RequestJoin(ctx, "zzzzzz", "addr_member")
	assert.ErrorIs(t, err, store.ErrDataNotFound)

	joined, err := m.RequestJoin(ctx, strings.ToLower(g.Code), "addr_member")
	require.NoError(t, err)
	assert.Equal(t, []string{"addr_member"}, joined.Pending)

	_, err = m.RequestJoin(ctx, g.Code, "addr_member")
	assert.ErrorIs(t, err, store.ErrInGroup)
	_, err = m.RequestJoin(ctx, g.Code, "addr_admin")
	assert.ErrorIs(t, err, store.ErrInGroup)

	of, err := m.GroupOf(ctx, "addr_member")
	require.NoError(t, err)
	assert.Equal(t, g.ID, of.ID)
	assert.True(t, of.IsPending("addr_member"))

	approved, err := m.Approve(ctx, g.ID, "addr_member")
	require.NoError(t, err)
	assert.Equal(t, []string{"addr_admin", "addr_member"}, approved.Members)
	assert.Empty(t, approved.Pending)

	_, err = m.Approve(ctx, g.ID, "addr_member")
	assert.ErrorIs(t, err, store.ErrNotPending)
	_, err = m.Reject(ctx, "nope", "addr_member")
	assert.ErrorIs(t, err, store.ErrDataNotFound)

	// settings updates leave members alone
	stale := *g
	stale.Name, stale.CurrentSavings = "Umoja", 20
	require.NoError(t, m.UpdateGroup(ctx, &stale))
	assert.Equal(t, []string{"addr_admin", "addr_member"}, stale.Members)

	stored, err := m.Group(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Umoja", stored.Name)
	assert.Equal(t, 20.0, stored.CurrentSavings)
	assert.Equal(t, []string{"addr_admin", "addr_member"}, stored.Members)

	// returned groups are copies
	stored.Members[0] = "changed"
	again, _ := m.Group(ctx, g.ID)
	assert.Equal(t, "addr_admin", again.Members[0])

	require.NoError(t, m.RemoveMember(ctx, g.ID, "addr_member"))
	assert.ErrorIs(t, m.RemoveMember(ctx, g.ID, "addr_member"), store.ErrDataNotFound)

	_, err = m.GroupOf(ctx, "addr_member")
	assert.ErrorIs(t, err, store.ErrDataNotFound)

	require.NoError(t, m.CreateGroup(ctx, &store.Group{Name: "Second", Admin: "addr_b", Members: []string{"addr_b"}}))
	gs, err := m.Groups(ctx)
	require.NoError(t, err)
	assert.Len(t, gs, 2)

	second := gs[0]
	if second.Name != "Second" {
		second = gs[1]
	}

	second.Name = "UMOJA"
	assert.ErrorIs(t, m.UpdateGroup(ctx, &second), store.ErrDuplicate)

	require.NoError(t, m.DeleteGroup(ctx, g.ID))
	assert.ErrorIs(t, m.DeleteGroup(ctx, g.ID), store.ErrDataNotFound)
	assert.ErrorIs(t, m.UpdateGroup(ctx, &stored), store.ErrDataNotFound)

	_, err = m.Group(ctx, g.ID)
	assert.ErrorIs(t, err, store.ErrDataNotFound)
}

func TestConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	m := New()

	a := &store.Group{Name: "A", Admin: "addr_a", Members: []string{"addr_a"}}
	b := &store.Group{Name: "B", Admin: "addr_b", Members: []string{"addr_b"}}
	require.NoError(t, m.CreateGroup(ctx, a))
	require.NoError(t, m.CreateGroup(ctx, b))

	var wg sync.WaitGroup

	var inGroup int32

	for i := 0; i < 20; i++ {
		wg.Add(2)

		go func(i int) {
			defer wg.Done()

			_, err := m.RequestJoin(ctx, a.Code, fmt.Sprintf("addr_w%d", i))
			assert.NoError(t, err)
		}(i)

		// the same wallet asking both groups gets in only one
		go func() {
			defer wg.Done()

			code := a.Code
			if rand.Intn(2) == 0 { //nolint:gosec
				code = b.Code
			}

			if _, err := m.RequestJoin(ctx, code, "addr_twice"); errors.Is(err, store.ErrInGroup) {
				atomic.AddInt32(&inGroup, 1)
			}
		}()
	}

	wg.Wait()

	ga, err := m.Group(ctx, a.ID)
	require.NoError(t, err)
	gb, err := m.Group(ctx, b.ID)
	require.NoError(t, err)

	var twice, others int

	for _, g := range []store.Group{ga, gb} {
		for _, w := range g.Pending {
			if w == "addr_twice" {
				twice++
			} else {
				others++
			}
		}
	}

	assert.Equal(t, 1, twice)
	assert.Equal(t, 20, others)
	assert.Equal(t, int32(19), atomic.LoadInt32(&inGroup))
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	m := New()

	_, err := m.LoadWatch(ctx, "savings")
	assert.ErrorIs(t, err, store.ErrDataNotFound)

	ws := store.WatchState{Address: "addr_test1", Height: 208, Tips: []string{"a", "b", "c"}, TipIdx: 1,
		Utxos: map[string]string{"aa#0": "d87980"}}
	require.NoError(t, m.SaveWatch(ctx, "savings", ws))

	ws.Utxos["bb#1"] = ""

	got, err := m.LoadWatch(ctx, "savings")
	require.NoError(t, err)
	assert.Equal(t, uint64(208), got.Height)
	assert.Equal(t, 1, got.TipIdx)
	assert.Len(t, got.Utxos, 1)
	assert.Equal(t, "d87980", got.Utxos["aa#0"])
}

func TestGroupHelpers(t *testing.T) {
	g := store.Group{Members: []string{"a", "b"}, Pending: []string{"c"}}

	assert.True(t, g.HasMember("a"))
	assert.False(t, g.HasMember("c"))
	assert.True(t, g.Reject("c"))
	assert.False(t, g.IsPending("c"))
	assert.True(t, g.Remove("a"))
	assert.False(t, g.Remove("a"))
	assert.Equal(t, []string{"b"}, g.Members)

	code := store.NewCode()
	assert.Regexp(t, "^[0-9A-Z]{6}$", code)
	assert.True(t, store.ValidCode(code))
	assert.True(t, store.ValidCode("abc123"))

	for _, c := range []string{"", "x", "ABC12", "ABC1234", "abc-!1", "ABC 12", "ÁBC123"} {
		assert.False(t, store.ValidCode(c), c)
	}

	assert.Equal(t, []string{"b", "c"}, (&store.Group{Members: []string{"b"}, Pending: []string{"c"}}).Wallets())
}
