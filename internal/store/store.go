package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"factor-backtest/internal/panel"
)

// Cell is one stored (asset, date, field) observation. The long format keeps
// the schema stable as factor columns are added over time.
type Cell struct {
	ID    uint      `gorm:"primaryKey"`
	Code  string    `gorm:"size:16;uniqueIndex:idx_cell,priority:1;not null"`
	Date  time.Time `gorm:"uniqueIndex:idx_cell,priority:2;not null"`
	Field string    `gorm:"size:64;uniqueIndex:idx_cell,priority:3;index;not null"`
	Value float64   `gorm:"not null"`
}

func (Cell) TableName() string { return "panel_cells" }

// PanelStore reads and writes panels keyed by (asset, date). It is the
// engine's only persistence collaborator.
type PanelStore struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// Open opens (creating if needed) a sqlite-backed store at path.
func Open(path string, log *zap.SugaredLogger) (*PanelStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Cell{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PanelStore{db: db, log: log}, nil
}

// Close releases the underlying sqlite connection pool. The store is unusable
// afterwards.
func (s *PanelStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Read loads one panel per requested field. codes and the date range are
// optional filters; nil/zero means unrestricted.
func (s *PanelStore) Read(fields, codes []string, start, stop time.Time) (map[string]*panel.Panel, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one field is required")
	}
	q := s.db.Model(&Cell{}).Where("field IN ?", fields)
	if len(codes) > 0 {
		q = q.Where("code IN ?", codes)
	}
	if !start.IsZero() {
		q = q.Where("date >= ?", panel.Day(start))
	}
	if !stop.IsZero() {
		q = q.Where("date <= ?", panel.Day(stop))
	}

	out := make(map[string]*panel.Panel, len(fields))
	for _, f := range fields {
		out[f] = panel.New()
	}
	rows, err := q.Rows()
	if err != nil {
		return nil, fmt.Errorf("read fields %v: %w", fields, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Cell
		if err := s.db.ScanRows(rows, &c); err != nil {
			return nil, err
		}
		out[c.Field].Set(c.Date, c.Code, c.Value)
	}
	return out, rows.Err()
}

// ReadField is Read for a single field.
func (s *PanelStore) ReadField(field string, codes []string, start, stop time.Time) (*panel.Panel, error) {
	m, err := s.Read([]string{field}, codes, start, stop)
	if err != nil {
		return nil, err
	}
	return m[field], nil
}

// Add appends a new column; it refuses to touch a field that already exists.
func (s *PanelStore) Add(field string, p *panel.Panel) error {
	cols, err := s.Columns()
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == field {
			return fmt.Errorf("field %q already exists; use Update", field)
		}
	}
	return s.write(field, p)
}

// Update overwrites (or creates) a column, upserting cell by cell.
func (s *PanelStore) Update(field string, p *panel.Panel) error {
	return s.write(field, p)
}

func (s *PanelStore) write(field string, p *panel.Panel) error {
	var cells []Cell
	for _, d := range p.Dates() {
		for code, v := range p.Row(d) {
			cells = append(cells, Cell{Code: code, Date: d, Field: field, Value: v})
		}
	}
	if len(cells) == 0 {
		return nil
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}, {Name: "date"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).CreateInBatches(cells, 500).Error
	if err != nil {
		return fmt.Errorf("write field %q: %w", field, err)
	}
	s.log.Infow("wrote panel column", "field", field, "cells", len(cells))
	return nil
}

// Columns lists the distinct fields available in the store.
func (s *PanelStore) Columns() ([]string, error) {
	var fields []string
	err := s.db.Model(&Cell{}).Distinct("field").Order("field").Pluck("field", &fields).Error
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return fields, nil
}
