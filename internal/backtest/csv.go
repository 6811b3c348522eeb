package backtest

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"factor-backtest/internal/analysis"
	"factor-backtest/internal/panel"
)

// WriteSeriesCSV writes aligned date-indexed series as columns. All series
// are sampled on the first column's date index; absent values print empty.
func WriteSeriesCSV(path string, names []string, series []*panel.Series) error {
	if len(names) != len(series) || len(series) == 0 {
		return fmt.Errorf("names and series must align and be non-empty")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"date"}, names...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, d := range series[0].Dates {
		row := make([]string, 0, len(series)+1)
		row = append(row, fmtDate(d))
		for j, s := range series {
			var v float64
			if j == 0 {
				v = s.Values[i]
			} else {
				v = s.At(d)
			}
			row = append(row, fmtFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteGroupedCSV dumps the value, turnover and evaluation artifacts of a
// layered run under dir, one file per artifact.
func WriteGroupedCSV(dir string, r *GroupedResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	names := make([]string, 0, len(r.Groups))
	values := make([]*panel.Series, 0, len(r.Groups))
	turnovers := make([]*panel.Series, 0, len(r.Groups))
	for i, g := range r.Groups {
		names = append(names, fmt.Sprintf("group%d", i+1))
		values = append(values, g.Value)
		turnovers = append(turnovers, g.Turnover)
	}
	if err := WriteSeriesCSV(dir+"/ngroup_value.csv", names, values); err != nil {
		return err
	}
	if err := WriteSeriesCSV(dir+"/ngroup_turnover.csv", names, turnovers); err != nil {
		return err
	}

	topk := []*panel.Series{r.TopK.Value, r.TopK.Turnover}
	topkNames := []string{"topk_value", "topk_turnover"}
	if r.TopK.ExcessValue != nil {
		topk = append(topk, r.TopK.ExcessValue)
		topkNames = append(topkNames, "topk_exvalue")
	}
	if err := WriteSeriesCSV(dir+"/topk.csv", topkNames, topk); err != nil {
		return err
	}

	if err := WriteSeriesCSV(dir+"/longshort_value.csv", []string{"longshort_value"}, []*panel.Series{r.LongShortValue}); err != nil {
		return err
	}
	if err := WriteSeriesCSV(dir+"/infocoef.csv", []string{"ic"}, []*panel.Series{r.IC}); err != nil {
		return err
	}
	return writeEvaluationCSV(dir+"/evaluation.csv", r)
}

func writeEvaluationCSV(path string, r *GroupedResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"portfolio",
		"total_return",
		"annualized_return",
		"mean_return",
		"sharpe",
		"max_drawdown",
		"turnover_mean",
		"final_value",
		"periods",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	writeRow := func(name string, ev Evaluation) error {
		return w.Write([]string{
			name,
			fmtFloat(ev.TotalReturn),
			fmtFloat(ev.AnnualizedReturn),
			fmtFloat(ev.MeanReturn),
			fmtFloat(ev.Sharpe),
			fmtFloat(ev.MaxDrawdown),
			fmtFloat(ev.TurnoverMean),
			fmtFloat(ev.FinalValue),
			strconv.Itoa(ev.Periods),
		})
	}
	for i, g := range r.Groups {
		if err := writeRow(fmt.Sprintf("group%d", i+1), g.Evaluation); err != nil {
			return err
		}
	}
	if err := writeRow("topk", r.TopK.Evaluation); err != nil {
		return err
	}
	// IC summary rides along as two pseudo-rows so one file carries the whole
	// evaluation table.
	if err := w.Write([]string{"ic_mean", fmtFloat(r.ICSummary.Mean), "", "", "", "", "", "", strconv.Itoa(r.ICSummary.N)}); err != nil {
		return err
	}
	if err := w.Write([]string{"ic_ir", fmtFloat(r.ICSummary.IR), "", "", "", "", "", "", strconv.Itoa(r.ICSummary.N)}); err != nil {
		return err
	}
	return w.Error()
}

// WriteCrossSectionCSV writes one date's factor/forward-return snapshot.
func WriteCrossSectionCSV(path string, rows []analysis.CrossSectionRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"code", "factor", "future_return"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Code, fmtFloat(r.Factor), fmtFloat(r.FutureReturn)}); err != nil {
			return err
		}
	}
	return w.Error()
}

func fmtDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func fmtFloat(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', 6, 64)
}
