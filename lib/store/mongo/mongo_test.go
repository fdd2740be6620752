//go:build integration
// +build integration

package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/tarancss/safesave/lib/store"
)

var uri string = "mongodb://localhost:27017"

func TestNewMongo(t *testing.T) {
	m, err := New(uri)
	if err != nil {
		t.Fatalf("err:%v", err)
	}

	if err = m.Close(); err != nil {
		t.Errorf("err:%v", err)
	}
}

func TestGroups(t *testing.T) {
	ctx := context.Background()

	m, err := New(uri)
	if err != nil {
		t.Fatalf("err:%v", err)
	}
	defer m.Close()

	g := &store.Group{Name: "integration group", Admin: "addr_admin", Members: []string{"addr_admin"}}
	if err = m.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup err:%v", err)
	}
	defer m.DeleteGroup(ctx, g.ID) //nolint:errcheck // cleanup

	if err = m.CreateGroup(ctx, &store.Group{Name: "Integration Group"}); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if err = m.CreateGroup(ctx, &store.Group{Name: "other", Admin: "addr_admin",
		Members: []string{"addr_admin"}}); !errors.Is(err, store.ErrInGroup) {
		t.Errorf("expected ErrInGroup, got %v", err)
	}

	if j, err := m.RequestJoin(ctx, g.Code, "addr_member"); err != nil || len(j.Pending) != 1 {
		t.Errorf("RequestJoin err:%v group:%+v", err, j)
	}

	if _, err = m.RequestJoin(ctx, g.Code, "addr_member"); !errors.Is(err, store.ErrInGroup) {
		t.Errorf("expected ErrInGroup, got %v", err)
	}

	if _, err = m.RequestJoin(ctx, "ZZZZZZ", "addr_other"); !errors.Is(err, store.ErrDataNotFound) {
		t.Errorf("expected ErrDataNotFound, got %v", err)
	}

	if of, err := m.GroupOf(ctx, "addr_member"); err != nil || of.ID != g.ID {
		t.Errorf("GroupOf err:%v group:%+v", err, of)
	}

	if a, err := m.Approve(ctx, g.ID, "addr_member"); err != nil || len(a.Members) != 2 || len(a.Pending) != 0 {
		t.Errorf("Approve err:%v group:%+v", err, a)
	}

	if _, err = m.Reject(ctx, g.ID, "addr_member"); !errors.Is(err, store.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	g.Name = "integration group renamed"
	if err = m.UpdateGroup(ctx, g); err != nil || len(g.Members) != 2 {
		t.Errorf("UpdateGroup err:%v group:%+v", err, g)
	}

	if err = m.RemoveMember(ctx, g.ID, "addr_member"); err != nil {
		t.Errorf("RemoveMember err:%v", err)
	}

	if _, err = m.GroupOf(ctx, "addr_member"); !errors.Is(err, store.ErrDataNotFound) {
		t.Errorf("expected ErrDataNotFound, got %v", err)
	}

	if bc, err := m.GroupByCode(ctx, g.Code); err != nil || bc.Name != g.Name {
		t.Errorf("GroupByCode err:%v group:%+v", err, bc)
	}

	if err = m.DeleteGroup(ctx, g.ID); err != nil {
		t.Errorf("DeleteGroup err:%v", err)
	}

	if _, err = m.Group(ctx, g.ID); !errors.Is(err, store.ErrDataNotFound) {
		t.Errorf("expected ErrDataNotFound, got %v", err)
	}
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	ws := store.WatchState{
		Address: "addr_test1",
		Height:  208,
		Tips:    []string{"first", "second", "third"},
		TipIdx:  0,
		Utxos:   map[string]string{"aa#0": "d87980"},
	}

	m, err := New(uri)
	if err != nil {
		t.Fatalf("err:%v", err)
	}
	defer m.Close()

	if err := m.SaveWatch(ctx, "test", ws); err != nil {
		t.Errorf("SaveWatch - err:%v", err)
	}

	if ws2, err2 := m.LoadWatch(ctx, "test"); err2 != nil || ws2.Height != 208 || ws2.Utxos["aa#0"] != "d87980" {
		t.Errorf("LoadWatch - err:%v, ws2:%+v", err2, ws2)
	}

	if err := m.DeleteWatch(ctx, "test"); err != nil {
		t.Errorf("DeleteWatch - err:%v", err)
	}
}
