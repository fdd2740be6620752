package db

import (
	"testing"

	"github.com/tarancss/safesave/lib/store/memory"
)

func TestNew(t *testing.T) {
	dh, err := New(MEMORY, "")
	if err != nil {
		t.Fatalf("err:%v", err)
	}

	if _, ok := dh.(*memory.Memory); !ok {
		t.Errorf("expected a memory store, got %T", dh)
	}

	if err = Close(dh); err != nil {
		t.Errorf("err:%v", err)
	}

	if _, err = New("cassandra", ""); err == nil {
		t.Errorf("expected error for unknown database type")
	}

	if err = Close(nil); err != nil {
		t.Errorf("err:%v", err)
	}
}
