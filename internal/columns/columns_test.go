package columns

import (
	"errors"
	"sync"
	"testing"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

func TestSetAllHidesEveryKey(t *testing.T) {
	v := New("symbol", "account", "pnl", "margin")
	v.SetAll(false)
	for _, k := range v.Keys() {
		if v.IsVisible(k) {
			t.Errorf("%s still visible after SetAll(false)", k)
		}
	}
	if got := len(v.Keys()); got != 4 {
		t.Fatalf("key count = %d, want 4", got)
	}
	if got := v.Visible(); len(got) != 0 {
		t.Fatalf("Visible() = %v, want none", got)
	}
	v.SetAll(true)
	if got := v.Visible(); len(got) != 4 || got[0] != "symbol" {
		t.Fatalf("Visible() = %v after SetAll(true)", got)
	}
}

func TestToggle(t *testing.T) {
	v := New("symbol", "pnl")
	got, err := v.Toggle("pnl")
	if err != nil || got {
		t.Fatalf("Toggle(pnl) = %v, %v", got, err)
	}
	if v.IsVisible("pnl") {
		t.Fatal("pnl visible after toggle")
	}
	if got, _ := v.Toggle("pnl"); !got {
		t.Fatal("second toggle did not restore pnl")
	}
}

func TestToggleUnknownKey(t *testing.T) {
	v := New("symbol")
	before := v.Snapshot()
	if _, err := v.Toggle("nope"); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Fatalf("Toggle(nope) err = %v", err)
	}
	if err := v.Set("nope", false); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Fatalf("Set(nope) err = %v", err)
	}
	after := v.Snapshot()
	if len(after) != len(before) || !after["symbol"] {
		t.Fatalf("snapshot changed: %v", after)
	}
	if v.IsVisible("nope") {
		t.Fatal("unknown key reported visible")
	}
}

func TestDuplicateKeysCollapse(t *testing.T) {
	v := New("a", "b", "a")
	if got := v.Keys(); len(got) != 2 {
		t.Fatalf("Keys() = %v", got)
	}
}

func TestSetAllConcurrentWithToggle(t *testing.T) {
	v := New("a", "b", "c", "d")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v.SetAll(false)
		}()
		go func() {
			defer wg.Done()
			_, _ = v.Toggle("b")
		}()
	}
	wg.Wait()
	v.SetAll(false)
	for _, k := range v.Keys() {
		if v.IsVisible(k) {
			t.Fatalf("%s visible", k)
		}
	}
}
