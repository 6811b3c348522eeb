package rebalance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"factor-backtest/internal/broker"
)

// Skip conditions. These never abort a run; broker call errors do.
var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrSubLot           = errors.New("below lot size")
)

// State names the phase the reconciler is in. Transitions are strictly
// sequential and never revisit a phase:
// INIT -> SELLING -> ADJUSTING -> BUYING -> DONE.
type State string

const (
	StateInit      State = "INIT"
	StateSelling   State = "SELLING"
	StateAdjusting State = "ADJUSTING"
	StateBuying    State = "BUYING"
	StateDone      State = "DONE"
)

// Action classifies an order intent.
type Action string

const (
	ActionSell   Action = "SELL"
	ActionAdjust Action = "ADJUST"
	ActionBuy    Action = "BUY"
)

// Skip records a per-order decision not to trade. Skips never abort the run.
type Skip struct {
	Code   string `json:"code"`
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Report is the terminal state of one reconciliation. A partially executed
// rebalance (broker failure mid-sequence) is a valid terminal state: Submitted
// lists what went through, State where it stopped. There is no rollback.
type Report struct {
	State     State           `json:"state"`
	Submitted []broker.Order  `json:"submitted"`
	Skipped   []Skip          `json:"skipped"`
	Assets    decimal.Decimal `json:"assets"`
	CashStart decimal.Decimal `json:"cash_start"`
	CashEnd   decimal.Decimal `json:"cash_end"`
}

// Reconciler converts a target asset set into sell/adjust/buy orders against
// live broker holdings. It is single-threaded by design: every feasibility
// check reads the local cash balance mutated by the previous order, so the
// loop must not be parallelized.
type Reconciler struct {
	client  broker.Client
	log     *zap.SugaredLogger
	lotSize int64
}

// New builds a reconciler. lotSize <= 0 defaults to the market convention of
// 100 shares.
func New(client broker.Client, log *zap.SugaredLogger, lotSize int64) *Reconciler {
	if lotSize <= 0 {
		lotSize = 100
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{client: client, log: log, lotSize: lotSize}
}

// Run reconciles the group toward holding the target codes at an equal
// per-name currency budget of total assets / len(target).
//
// Cash bookkeeping is optimistic: proceeds are credited and costs debited the
// moment an order is submitted, without waiting for fills. Per-order
// shortfalls (cash, sub-lot sizes) are skipped and logged; a broker call
// failure aborts the remaining sequence and is returned alongside the partial
// report.
func (r *Reconciler) Run(groupID string, target []string) (*Report, error) {
	report := &Report{State: StateInit}
	if len(target) == 0 {
		return report, fmt.Errorf("empty target set")
	}

	perf, err := r.client.Performance(groupID)
	if err != nil {
		return report, fmt.Errorf("read performance: %w", err)
	}

	held := make(map[string]broker.Position, len(perf.Positions))
	for _, p := range perf.Positions {
		held[broker.StripCode(p.Code)] = p
	}
	wanted := make(map[string]bool, len(target))
	for _, c := range target {
		wanted[broker.StripCode(c)] = true
	}

	cash := perf.Cash
	budget := perf.Assets.Div(decimal.NewFromInt(int64(len(target))))
	report.Assets = perf.Assets
	report.CashStart = perf.Cash
	r.log.Infow("rebalance start", "group", groupID, "targets", len(target),
		"assets", perf.Assets, "cash", cash, "budget", budget)

	// SELLING: liquidate everything outside the target set.
	report.State = StateSelling
	for _, p := range perf.Positions {
		code := broker.StripCode(p.Code)
		if wanted[code] {
			continue
		}
		shares := p.Shares.IntPart()
		order, err := r.client.AddTransaction(groupID, code, -shares, p.Price)
		if err != nil {
			return report, fmt.Errorf("sell %s: %w", code, err)
		}
		report.Submitted = append(report.Submitted, order)
		cash = cash.Add(p.Price.Mul(decimal.NewFromInt(shares)))
		r.log.Infow("closed position", "code", code, "shares", shares, "cash", cash)
	}

	// ADJUSTING: move names held in the target toward the per-name budget.
	report.State = StateAdjusting
	for _, p := range perf.Positions {
		code := broker.StripCode(p.Code)
		if !wanted[code] {
			continue
		}
		gap := budget.Sub(p.Price.Mul(p.Shares))
		if gap.IsPositive() && cash.LessThan(gap) {
			report.Skipped = append(report.Skipped, Skip{Code: code, Action: ActionAdjust, Reason: ErrInsufficientCash.Error()})
			r.log.Infow("short in cash, abort adjust", "code", code, "gap", gap, "cash", cash)
			continue
		}
		shares := wholeLots(gap, p.Price, r.lotSize)
		if shares == 0 {
			continue
		}
		if abs64(shares) < r.lotSize {
			report.Skipped = append(report.Skipped, Skip{Code: code, Action: ActionAdjust, Reason: ErrSubLot.Error()})
			r.log.Infow("sub-lot adjustment skipped", "code", code, "shares", shares)
			continue
		}
		order, err := r.client.AddTransaction(groupID, code, shares, p.Price)
		if err != nil {
			return report, fmt.Errorf("adjust %s: %w", code, err)
		}
		report.Submitted = append(report.Submitted, order)
		cash = cash.Sub(p.Price.Mul(decimal.NewFromInt(shares)))
		r.log.Infow("adjusted position", "code", code, "shares", shares, "cash", cash)
	}

	// BUYING: open the target names not yet held, one budget each.
	report.State = StateBuying
	for _, c := range target {
		code := broker.StripCode(c)
		if _, ok := held[code]; ok {
			continue
		}
		if cash.LessThan(budget) {
			report.Skipped = append(report.Skipped, Skip{Code: code, Action: ActionBuy, Reason: ErrInsufficientCash.Error()})
			r.log.Infow("short in cash, abort buy", "code", code, "cash", cash, "budget", budget)
			continue
		}
		price, err := r.client.Quote(code)
		if err != nil {
			return report, fmt.Errorf("quote %s: %w", code, err)
		}
		shares := wholeLots(budget, price, r.lotSize)
		if shares < r.lotSize {
			report.Skipped = append(report.Skipped, Skip{Code: code, Action: ActionBuy, Reason: ErrSubLot.Error()})
			r.log.Infow("budget below one lot", "code", code, "price", price, "budget", budget)
			continue
		}
		order, err := r.client.AddTransaction(groupID, code, shares, price)
		if err != nil {
			return report, fmt.Errorf("buy %s: %w", code, err)
		}
		report.Submitted = append(report.Submitted, order)
		cash = cash.Sub(price.Mul(decimal.NewFromInt(shares)))
		r.log.Infow("opened position", "code", code, "shares", shares, "price", price, "cash", cash)
	}

	report.State = StateDone
	report.CashEnd = cash
	r.log.Infow("rebalance done", "orders", len(report.Submitted), "skips", len(report.Skipped), "cash", cash)
	return report, nil
}

// wholeLots converts a currency amount into a signed share count rounded
// toward negative infinity to a whole lot multiple. Fractional lots are
// forbidden by the exchange.
func wholeLots(amount, price decimal.Decimal, lot int64) int64 {
	if price.IsZero() || !price.IsPositive() {
		return 0
	}
	lots := amount.Div(price).Div(decimal.NewFromInt(lot)).Floor()
	return lots.IntPart() * lot
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
