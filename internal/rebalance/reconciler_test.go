package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"

	"factor-backtest/internal/broker"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func snapshot(cash, assets float64, positions ...broker.Position) broker.Performance {
	return broker.Performance{
		Cash:      dec(cash),
		Assets:    dec(assets),
		Positions: positions,
	}
}

func position(code string, shares int64, price float64) broker.Position {
	return broker.Position{
		Code:   broker.NormalizeCode(code),
		Shares: decimal.NewFromInt(shares),
		Price:  dec(price),
	}
}

func TestRunSellsThenBuysWholeLots(t *testing.T) {
	// Hold 100 shares of a departing name at 10 with 500 cash; one target
	// name quoted at 15. Liquidation frees 1000, so the buy affords exactly
	// one lot: floor(1500/15/100)*100 = 100 shares.
	client := broker.NewRecordingClient(
		snapshot(500, 1500, position("000001", 100, 10)),
		map[string]decimal.Decimal{"600000": dec(15)},
	)
	report, err := New(client, nil, 100).Run("g1", []string{"600000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.State != StateDone {
		t.Fatalf("expected DONE, got %s", report.State)
	}
	if len(client.Orders) != 2 {
		t.Fatalf("expected sell+buy, got %d orders", len(client.Orders))
	}
	sell, buy := client.Orders[0], client.Orders[1]
	if sell.Shares != -100 || sell.Code != "SZ000001" {
		t.Fatalf("unexpected sell order: %+v", sell)
	}
	if buy.Shares != 100 || buy.Code != "SH600000" {
		t.Fatalf("unexpected buy order: %+v", buy)
	}
	if !report.CashEnd.Equal(dec(0)) {
		t.Fatalf("cash should be fully deployed, got %s", report.CashEnd)
	}
}

func TestRunAdjustSkipsWhenCashShortOfGap(t *testing.T) {
	// Target keeps the held name. Budget 1000, held value 800, gap 200,
	// but only 50 cash: the adjust is skipped, not partially filled.
	client := broker.NewRecordingClient(
		snapshot(50, 1000, position("000001", 80, 10)),
		nil,
	)
	report, err := New(client, nil, 100).Run("g1", []string{"000001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Orders) != 0 {
		t.Fatalf("no order should go out, got %+v", client.Orders)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Action != ActionAdjust || report.Skipped[0].Reason != "insufficient cash" {
		t.Fatalf("expected one cash skip, got %+v", report.Skipped)
	}
	if report.State != StateDone {
		t.Fatalf("skips must not abort the run, state=%s", report.State)
	}
}

func TestRunAdjustTrimsOverweightName(t *testing.T) {
	// Budget 1000, held 2000 at 10: gap -1000 sells exactly one lot of 100.
	client := broker.NewRecordingClient(
		snapshot(0, 2000, position("000001", 200, 10)),
		map[string]decimal.Decimal{"000002": dec(5)},
	)
	_, err := New(client, nil, 100).Run("g1", []string{"000001", "000002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Orders) != 2 || client.Orders[0].Shares != -100 {
		t.Fatalf("expected a -100 share trim then a buy, got %+v", client.Orders)
	}
	// trim proceeds fund the second name: 1000 cash buys 200 shares at 5
	if client.Orders[1].Shares != 200 {
		t.Fatalf("freed cash should buy 200 shares, got %d", client.Orders[1].Shares)
	}
}

func TestRunSubLotAdjustIsSkipped(t *testing.T) {
	// Gap 50 at price 1 is below one lot: skip rather than submit 50 shares.
	client := broker.NewRecordingClient(
		snapshot(1000, 1000, position("000001", 950, 1)),
		nil,
	)
	report, err := New(client, nil, 100).Run("g1", []string{"000001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Orders) != 0 {
		t.Fatalf("sub-lot order must not be submitted: %+v", client.Orders)
	}
	if len(report.Skipped) != 0 {
		// gap 50 -> wholeLots rounds to 0 shares, silent continue
		t.Fatalf("zero-share adjustment should be silent, got %+v", report.Skipped)
	}
}

func TestRunBuySkippedWhenCashBelowBudget(t *testing.T) {
	// Two fresh targets, budget 500 each, but only 600 cash: the first buy
	// spends it and the second is skipped.
	client := broker.NewRecordingClient(
		snapshot(600, 1000),
		map[string]decimal.Decimal{"000001": dec(5), "000002": dec(5)},
	)
	report, err := New(client, nil, 100).Run("g1", []string{"000001", "000002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Orders) != 1 {
		t.Fatalf("expected exactly one buy, got %+v", client.Orders)
	}
	if client.Orders[0].Shares != 100 {
		t.Fatalf("budget 500 at 5 should buy one lot, got %d", client.Orders[0].Shares)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Code != "000002" || report.Skipped[0].Action != ActionBuy {
		t.Fatalf("second target should be skipped for cash, got %+v", report.Skipped)
	}
}

func TestRunBrokerFailureAbortsWithoutRollback(t *testing.T) {
	client := broker.NewRecordingClient(
		snapshot(0, 3000, position("000001", 100, 10), position("000002", 100, 10)),
		nil,
	)
	client.FailCodes = map[string]bool{"000002": true}
	report, err := New(client, nil, 100).Run("g1", []string{"600000"})
	if err == nil {
		t.Fatal("broker rejection must surface as an error")
	}
	if report.State != StateSelling {
		t.Fatalf("run should stop in SELLING, got %s", report.State)
	}
	if len(client.Orders) != 1 {
		t.Fatalf("the first sell stays submitted, got %d orders", len(client.Orders))
	}
}

func TestRunEmptyTargetSet(t *testing.T) {
	client := broker.NewRecordingClient(snapshot(0, 0), nil)
	if _, err := New(client, nil, 100).Run("g1", nil); err == nil {
		t.Fatal("empty target set must error")
	}
}

func TestWholeLots(t *testing.T) {
	if got := wholeLots(dec(1500), dec(15), 100); got != 100 {
		t.Fatalf("1500/15 should floor to one lot, got %d", got)
	}
	if got := wholeLots(dec(1499), dec(15), 100); got != 0 {
		t.Fatalf("just under a lot should floor to zero, got %d", got)
	}
	if got := wholeLots(dec(-1000), dec(10), 100); got != -100 {
		t.Fatalf("negative amounts floor toward more negative, got %d", got)
	}
	if got := wholeLots(dec(100), decimal.Zero, 100); got != 0 {
		t.Fatalf("zero price must not divide, got %d", got)
	}
}
