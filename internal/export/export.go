package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/pkg/model"
)

// Columns is the CSV header, in output order
var Columns = []string{
	"Symbol", "Company", "Sector", "Industry", "Market_Cap_Cr",
	"Price", "Daily_EMA_252", "Daily_vs_EMA", "Daily_Diff_%", "Daily_Slope_%",
	"Weekly_EMA_260", "Weekly_vs_EMA", "Weekly_Diff_%", "Weekly_Slope_%",
	"Timeframe_Alignment", "Trend_Strength", "Trend",
	"P/E", "ROE_%", "Debt/Equity", "P/B", "Quality_Score",
	"Delivery_Qty", "Delivery_Qty_Avg", "Delivery_Qty_Baseline", "Delivery_Qty_Spike", "Has_Qty_Spike", "Delivery_%",
	"Delivery_Qty_Trend", "Lookback_Days", "Data_Points",
	"Tech_Score", "Fund_Score", "Deliv_Score", "Score", "Signal", "Timestamp",
}

// Exporter writes run reports into a directory
type Exporter struct {
	dir      string
	stepsDir string
	logger   arbor.ILogger
	now      func() time.Time
}

// NewExporter creates an exporter rooted at dir
func NewExporter(dir string, logger arbor.ILogger) *Exporter {
	if dir == "" {
		dir = filepath.Join("data", "exports")
	}
	return &Exporter{
		dir:      dir,
		stepsDir: filepath.Join(filepath.Dir(dir), "step_exports"),
		logger:   logger,
		now:      time.Now,
	}
}

// FileName returns the timestamped default name for ext, e.g. stock_analysis_20240603_153000.csv
func (e *Exporter) FileName(ext string) string {
	return fmt.Sprintf("stock_analysis_%s.%s", e.now().Format("20060102_150405"), ext)
}

// CSV writes the report's results to name ("" uses FileName) and returns the path.
// When withMetadata is set the summary precedes the table as # comment lines.
func (e *Exporter) CSV(report *model.RunReport, name string, withMetadata bool) (string, error) {
	path, err := e.target(name, "csv")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if withMetadata {
		if err := WriteMetadata(f, report.Summary); err != nil {
			return "", err
		}
	}
	if err := WriteCSV(f, report.Results); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}

	e.logger.Info().Str("path", path).Int("rows", len(report.Results)).Msg("Results exported to CSV")
	return path, nil
}

// JSON writes the full report to name ("" uses FileName) and returns the path
func (e *Exporter) JSON(report *model.RunReport, name string) (string, error) {
	path, err := e.target(name, "json")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteJSON(f, report); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}

	e.logger.Info().Str("path", path).Int("rows", len(report.Results)).Msg("Report exported to JSON")
	return path, nil
}

// StepColumns is the header of the intermediate delivery export
var StepColumns = []string{
	"Symbol", "Delivery_Qty", "Delivery_Qty_Avg", "Delivery_Qty_Baseline", "Delivery_Qty_Spike_Ratio",
	"Has_Qty_Spike", "Delivery_Pct", "Qty_Trend", "Lookback_Days", "Data_Points",
}

// Steps writes the intermediate stages of a run next to the export dir, in step_exports:
// the requested symbols, the delivery data of symbols that had any, and the final scored table.
// Returns the written paths in stage order.
func (e *Exporter) Steps(requested []string, report *model.RunReport) ([]string, error) {
	if err := os.MkdirAll(e.stepsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating step export directory: %w", err)
	}
	ts := e.now().Format("20060102_150405")

	stages := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"step1_symbols", func(w io.Writer) error { return writeSymbols(w, requested) }},
		{"step2_delivery_data", func(w io.Writer) error { return WriteDeliveryCSV(w, report.Results) }},
		{"step3_final_scored", func(w io.Writer) error { return WriteCSV(w, report.Results) }},
	}

	paths := make([]string, 0, len(stages))
	for _, st := range stages {
		path := filepath.Join(e.stepsDir, fmt.Sprintf("%s_%s.csv", st.name, ts))
		if err := writeFile(path, st.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	e.logger.Info().Str("dir", e.stepsDir).Int("files", len(paths)).Msg("Step exports written")
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func writeSymbols(w io.Writer, syms []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Symbol"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, s := range syms {
		if err := cw.Write([]string{s}); err != nil {
			return fmt.Errorf("writing %s: %w", s, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDeliveryCSV writes the delivery columns of results that carry delivery data
func WriteDeliveryCSV(w io.Writer, results []model.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(StepColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range results {
		if r.DataPoints == 0 {
			continue
		}
		rec := []string{
			r.Symbol, num(r.DeliveryQty), num(r.DeliveryQtyAvg), num(r.DeliveryBaseline), num(r.SpikeRatio),
			strconv.FormatBool(r.DeliverySpike), num(r.DeliveryPct), r.DeliveryTrend,
			strconv.Itoa(r.LookbackDays), strconv.Itoa(r.DataPoints),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing %s: %w", r.Symbol, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Exporter) target(name, ext string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	if name == "" {
		name = e.FileName(ext)
	}
	if !strings.HasSuffix(name, "."+ext) {
		name += "." + ext
	}
	return filepath.Join(e.dir, name), nil
}

// WriteMetadata writes the summary as # comment lines followed by a blank line
func WriteMetadata(w io.Writer, s model.Summary) error {
	lines := []string{
		"# NSE Stock Analysis Export",
		"# run_id: " + s.RunID,
		"# timestamp: " + s.Timestamp.Format("2006-01-02 15:04:05"),
		fmt.Sprintf("# total_analyzed: %d", s.Total),
		fmt.Sprintf("# buy_signals: %d", s.Buy),
		fmt.Sprintf("# hold_signals: %d", s.Hold),
		fmt.Sprintf("# avoid_signals: %d", s.Avoid),
		fmt.Sprintf("# failed: %d", s.Failed),
		"",
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// WriteCSV writes results with the Columns header
func WriteCSV(w io.Writer, results []model.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write(row(r)); err != nil {
			return fmt.Errorf("writing %s: %w", r.Symbol, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r model.Result) []string {
	return []string{
		r.Symbol, r.Company, r.Sector, r.Industry, num(r.MarketCap),
		num(r.CurrentPrice), num(r.DailyEMA), position(r.AboveDaily), num(r.DailyDiffPct), num(r.DailySlopePct),
		num(r.WeeklyEMA), position(r.AboveWeekly), num(r.WeeklyDiffPct), num(r.WeeklySlopePct),
		strconv.Itoa(r.Alignment), r.TrendStrength, r.OverallTrend,
		num(r.PE), num(r.ROE), num(r.DebtToEquity), num(r.PB), num(r.QualityScore),
		num(r.DeliveryQty), num(r.DeliveryQtyAvg), num(r.DeliveryBaseline), num(r.SpikeRatio), strconv.FormatBool(r.DeliverySpike),
		num(r.DeliveryPct), r.DeliveryTrend, strconv.Itoa(r.LookbackDays), strconv.Itoa(r.DataPoints),
		num(r.TechnicalScore), num(r.FundamentalScore), num(r.DeliveryScore), num(r.TotalScore), string(r.Signal),
		r.Timestamp.Format(time.RFC3339),
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func position(above bool) string {
	if above {
		return "ABOVE"
	}
	return "BELOW"
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, report *model.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
