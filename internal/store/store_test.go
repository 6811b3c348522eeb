package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"factor-backtest/internal/panel"
)

func day(n int) time.Time {
	return panel.Day(time.Date(2024, 2, n, 0, 0, 0, 0, time.UTC))
}

func openTemp(t *testing.T) *PanelStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestAddReadRoundTrip(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	p.Set(day(1), "000001", 10.5)
	p.Set(day(2), "000001", 11)
	p.Set(day(1), "600000", 20)
	if err := s.Add("open", p); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.ReadField("open", nil, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v := got.Get(day(1), "000001"); v != 10.5 {
		t.Fatalf("round trip lost value: %v", v)
	}
	if v := got.Get(day(2), "600000"); !math.IsNaN(v) {
		t.Fatalf("absent cell should read NaN, got %v", v)
	}
}

func TestAddRefusesExistingField(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	p.Set(day(1), "a", 1)
	if err := s.Add("open", p); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("open", p); err == nil {
		t.Fatal("second add of the same field must fail")
	}
}

func TestUpdateUpserts(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	p.Set(day(1), "a", 1)
	if err := s.Add("f", p); err != nil {
		t.Fatalf("add: %v", err)
	}
	p2 := panel.New()
	p2.Set(day(1), "a", 2)
	p2.Set(day(2), "a", 3)
	if err := s.Update("f", p2); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.ReadField("f", nil, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Get(day(1), "a") != 2 || got.Get(day(2), "a") != 3 {
		t.Fatalf("upsert mismatch: %v", got.Row(day(1)))
	}
}

func TestReadFilters(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	for n := 1; n <= 5; n++ {
		p.Set(day(n), "a", float64(n))
		p.Set(day(n), "b", float64(n))
	}
	if err := s.Add("close", p); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.ReadField("close", []string{"a"}, day(2), day(4))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("date filter should leave 3 dates, got %d", got.Len())
	}
	if got.Has(day(3), "b") {
		t.Fatal("code filter should drop b")
	}
}

func TestColumns(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	p.Set(day(1), "a", 1)
	if err := s.Add("open", p); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("adjfactor", p); err != nil {
		t.Fatal(err)
	}
	cols, err := s.Columns()
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if len(cols) != 2 || cols[0] != "adjfactor" || cols[1] != "open" {
		t.Fatalf("unexpected columns: %v", cols)
	}
}

func TestTradingDaysRollback(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	for _, n := range []int{1, 2, 5} {
		p.Set(day(n), "a", 1)
	}
	if err := s.Add("open", p); err != nil {
		t.Fatal(err)
	}
	got, err := s.TradingDaysRollback(day(6), 1)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !got.Equal(day(2)) {
		t.Fatalf("one day back from the 5th session should be the 2nd, got %v", got)
	}
	if _, err := s.TradingDaysRollback(day(6), 3); err == nil {
		t.Fatal("rollback past the calendar must error")
	}
}

func TestCloseReleasesStore(t *testing.T) {
	s := openTemp(t)
	p := panel.New()
	p.Set(day(1), "a", 1)
	if err := s.Add("open", p); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Columns(); err == nil {
		t.Fatal("reads after Close must error")
	}
}

func TestPricesAppliesAdjustmentAndFlags(t *testing.T) {
	s := openTemp(t)
	raw := panel.New()
	raw.Set(day(1), "a", 10)
	raw.Set(day(1), "b", 10)
	adj := panel.New()
	adj.Set(day(1), "a", 2)
	adj.Set(day(1), "b", 1)
	st := panel.New()
	st.Set(day(1), "a", 0)
	st.Set(day(1), "b", 0)
	susp := panel.New()
	susp.Set(day(1), "a", 0)
	susp.Set(day(1), "b", 1)
	if err := s.Add("open", raw); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(FieldAdjFactor, adj); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(FieldST, st); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(FieldSuspended, susp); err != nil {
		t.Fatal(err)
	}

	prices, err := s.Prices("open", nil, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if got := prices.Get(day(1), "a"); got != 20 {
		t.Fatalf("adjusted price should be 20, got %v", got)
	}
	if prices.Has(day(1), "b") {
		t.Fatal("suspended asset must be excluded, not zeroed")
	}
}

func TestPricesMasksOnTheOnlyFlagColumn(t *testing.T) {
	s := openTemp(t)
	raw := panel.New()
	raw.Set(day(1), "a", 10)
	raw.Set(day(1), "b", 10)
	susp := panel.New()
	susp.Set(day(1), "a", 0)
	susp.Set(day(1), "b", 1)
	if err := s.Add("open", raw); err != nil {
		t.Fatal(err)
	}
	// No st column at all; masking must use only the suspended flags.
	if err := s.Add(FieldSuspended, susp); err != nil {
		t.Fatal(err)
	}

	prices, err := s.Prices("open", nil, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if got := prices.Get(day(1), "a"); got != 10 {
		t.Fatalf("unflagged asset must survive, got %v", got)
	}
	if prices.Has(day(1), "b") {
		t.Fatal("suspended asset must be excluded")
	}
}
