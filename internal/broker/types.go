package broker

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is one held asset inside a brokerage group.
type Position struct {
	Code        string          `json:"code"`
	Shares      decimal.Decimal `json:"shares"`
	Price       decimal.Decimal `json:"price"` // last traded price
	MarketValue decimal.Decimal `json:"market_value"`
}

// Performance is the broker-side snapshot of one group: total assets,
// available cash and current positions. It is read once at the start of a
// rebalance and then only mutated locally.
type Performance struct {
	Assets    decimal.Decimal `json:"assets"`
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
}

// Group identifies a brokerage portfolio group.
type Group struct {
	ID   string `json:"gid"`
	Name string `json:"name"`
}

// Order is one submitted transaction. Shares are signed: negative sells.
type Order struct {
	ID      uuid.UUID       `json:"id"`
	GroupID string          `json:"group_id"`
	Code    string          `json:"code"`
	Shares  int64           `json:"shares"`
	Price   decimal.Decimal `json:"price"`
	At      time.Time       `json:"at"`
}

// Client is the brokerage collaborator. Implementations are synchronous and
// must not retry: a failed call surfaces to the caller, which decides whether
// the remaining sequence continues.
type Client interface {
	GroupList() ([]Group, error)
	Performance(groupID string) (*Performance, error)
	Quote(code string) (decimal.Decimal, error)
	AddTransaction(groupID, code string, shares int64, price decimal.Decimal) (Order, error)
}

// NormalizeCode prefixes a bare 6-digit mainland code with its exchange:
// Shenzhen for 0/3-prefixed codes, Shanghai otherwise. Codes that already
// carry a prefix pass through.
func NormalizeCode(code string) string {
	if len(code) != 6 {
		return code
	}
	switch code[0] {
	case '0', '3':
		return "SZ" + code
	default:
		return "SH" + code
	}
}

// StripCode removes an exchange prefix, returning the bare 6-digit code.
func StripCode(code string) string {
	if len(code) == 8 && (code[:2] == "SZ" || code[:2] == "SH") {
		return code[2:]
	}
	return code
}
