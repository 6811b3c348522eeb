package store

import (
	"fmt"
	"time"

	"factor-backtest/internal/panel"
)

// TradingDays returns the ordered distinct dates present in the store within
// [start, stop]. The stored quote dates are the trading calendar; there is no
// separate holiday table.
func (s *PanelStore) TradingDays(start, stop time.Time) ([]time.Time, error) {
	q := s.db.Model(&Cell{}).Distinct("date").Order("date")
	if !start.IsZero() {
		q = q.Where("date >= ?", panel.Day(start))
	}
	if !stop.IsZero() {
		q = q.Where("date <= ?", panel.Day(stop))
	}
	var dates []time.Time
	if err := q.Pluck("date", &dates).Error; err != nil {
		return nil, fmt.Errorf("trading days: %w", err)
	}
	for i := range dates {
		dates[i] = panel.Day(dates[i])
	}
	return dates, nil
}

// TradingDaysRollback returns the nth trading date at or before date
// (n=0 is the latest such date).
func (s *PanelStore) TradingDaysRollback(date time.Time, n int) (time.Time, error) {
	days, err := s.TradingDays(time.Time{}, date)
	if err != nil {
		return time.Time{}, err
	}
	if len(days) <= n {
		return time.Time{}, fmt.Errorf("only %d trading days on record before %s", len(days), date.Format("2006-01-02"))
	}
	return days[len(days)-1-n], nil
}
