package broker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordingClient is an in-memory Client used by tests and by the dry-run
// rebalance path: it serves a fixed snapshot and quote table and records every
// order instead of submitting it.
type RecordingClient struct {
	Groups    []Group
	Snapshot  Performance
	Quotes    map[string]decimal.Decimal
	Orders    []Order
	FailCodes map[string]bool // codes whose submission should fail
}

func NewRecordingClient(snapshot Performance, quotes map[string]decimal.Decimal) *RecordingClient {
	return &RecordingClient{
		Groups:   []Group{{ID: "dryrun", Name: "dry run"}},
		Snapshot: snapshot,
		Quotes:   quotes,
	}
}

func (c *RecordingClient) GroupList() ([]Group, error) {
	return c.Groups, nil
}

func (c *RecordingClient) Performance(string) (*Performance, error) {
	snap := c.Snapshot
	snap.Positions = append([]Position(nil), c.Snapshot.Positions...)
	return &snap, nil
}

func (c *RecordingClient) Quote(code string) (decimal.Decimal, error) {
	if q, ok := c.Quotes[StripCode(code)]; ok {
		return q, nil
	}
	return decimal.Zero, fmt.Errorf("no quote for %s", code)
}

// DryRunClient delegates reads to a live client but records submissions
// instead of placing them, so a dry run sees the real portfolio and quotes.
type DryRunClient struct {
	live   Client
	Orders []Order
}

func NewDryRunClient(live Client) *DryRunClient {
	return &DryRunClient{live: live}
}

func (c *DryRunClient) GroupList() ([]Group, error) { return c.live.GroupList() }

func (c *DryRunClient) Performance(groupID string) (*Performance, error) {
	return c.live.Performance(groupID)
}

func (c *DryRunClient) Quote(code string) (decimal.Decimal, error) {
	return c.live.Quote(code)
}

func (c *DryRunClient) AddTransaction(groupID, code string, shares int64, price decimal.Decimal) (Order, error) {
	order := Order{
		ID:      uuid.New(),
		GroupID: groupID,
		Code:    NormalizeCode(code),
		Shares:  shares,
		Price:   price,
		At:      time.Now(),
	}
	c.Orders = append(c.Orders, order)
	return order, nil
}

func (c *RecordingClient) AddTransaction(groupID, code string, shares int64, price decimal.Decimal) (Order, error) {
	if c.FailCodes[StripCode(code)] {
		return Order{}, fmt.Errorf("broker rejected %s", code)
	}
	order := Order{
		ID:      uuid.New(),
		GroupID: groupID,
		Code:    NormalizeCode(code),
		Shares:  shares,
		Price:   price,
		At:      time.Now(),
	}
	c.Orders = append(c.Orders, order)
	return order, nil
}
