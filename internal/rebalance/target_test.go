package rebalance

import (
	"path/filepath"
	"testing"
	"time"

	"factor-backtest/internal/panel"
	"factor-backtest/internal/store"
)

func openStore(t *testing.T, name string) *store.PanelStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), name), nil)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return s
}

func TestTargetsRanksPoolAndSkipsFlagged(t *testing.T) {
	date := panel.Day(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))

	quotes := openStore(t, "quotes.db")
	pool := panel.New()
	st := panel.New()
	susp := panel.New()
	for _, code := range []string{"000001", "000002", "000003", "600000"} {
		pool.Set(date, code, 1)
		st.Set(date, code, 0)
		susp.Set(date, code, 0)
	}
	susp.Set(date, "000003", 1) // best factor value, but halted
	if err := quotes.Add("pool_major", pool); err != nil {
		t.Fatal(err)
	}
	if err := quotes.Add(store.FieldST, st); err != nil {
		t.Fatal(err)
	}
	if err := quotes.Add(store.FieldSuspended, susp); err != nil {
		t.Fatal(err)
	}

	factors := openStore(t, "factors.db")
	f := panel.New()
	f.Set(date, "000001", 0.3)
	f.Set(date, "000002", 0.1)
	f.Set(date, "000003", 0.9)
	f.Set(date, "600000", 0.5)
	f.Set(date, "999999", 1.0) // outside the pool
	if err := factors.Add("alpha", f); err != nil {
		t.Fatal(err)
	}

	got, err := Targets(quotes, factors, "alpha", "pool_major", date, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "600000" || got[1] != "000001" {
		t.Fatalf("expected [600000 000001], got %v", got)
	}
}

func TestTargetsMasksOnTheOnlyFlagColumn(t *testing.T) {
	date := panel.Day(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))

	quotes := openStore(t, "quotes.db")
	susp := panel.New()
	susp.Set(date, "000001", 0)
	susp.Set(date, "600000", 1)
	// Only the suspended column exists; st must not be consulted.
	if err := quotes.Add(store.FieldSuspended, susp); err != nil {
		t.Fatal(err)
	}

	factors := openStore(t, "factors.db")
	f := panel.New()
	f.Set(date, "000001", 0.2)
	f.Set(date, "600000", 0.8)
	if err := factors.Add("alpha", f); err != nil {
		t.Fatal(err)
	}

	got, err := Targets(quotes, factors, "alpha", "", date, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "000001" {
		t.Fatalf("expected [000001], got %v", got)
	}
}

func TestTargetsErrorsOnEmptyDate(t *testing.T) {
	quotes := openStore(t, "quotes.db")
	factors := openStore(t, "factors.db")
	date := panel.Day(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	if _, err := Targets(quotes, factors, "alpha", "", date, 5, true); err == nil {
		t.Fatal("missing factor data must error")
	}
}
