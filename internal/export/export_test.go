package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"alphascreen/pkg/model"
)

func sampleReport() *model.RunReport {
	ts := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)
	return &model.RunReport{
		Summary: model.Summary{RunID: "run-1", Total: 2, Buy: 1, Avoid: 1, Timestamp: ts},
		Results: []model.Result{
			{Symbol: "M&M", Company: "Mahindra & Mahindra, Ltd", Sector: "Consumer Cyclical", AboveDaily: true,
				DailyDiffPct: 1.25, TotalScore: 4.5, Signal: model.SignalBuy, DeliveryTrend: model.TrendRising, Timestamp: ts,
				DeliveryQty: 3000, DeliveryQtyAvg: 1500, DeliveryBaseline: 1000, SpikeRatio: 3, DeliverySpike: true,
				DeliveryPct: 45.5, LookbackDays: 90, DataPoints: 20},
			{Symbol: "IDEA", Company: "Vodafone Idea", TotalScore: -2, Signal: model.SignalAvoid, DeliveryTrend: "N/A", Timestamp: ts},
		},
		Failed: []string{"NODATA"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport().Results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	for _, r := range rows {
		assert.Len(t, r, len(Columns))
	}

	first := rows[1]
	assert.Equal(t, "M&M", first[0])
	assert.Equal(t, "Mahindra & Mahindra, Ltd", first[1])
	assert.Equal(t, "ABOVE", first[7])
	assert.Equal(t, "1.25", first[8])
	assert.Equal(t, "BELOW", first[11])
	assert.Equal(t, "1000", first[24])
	assert.Equal(t, "true", first[26])
	assert.Equal(t, "90", first[29])
	assert.Equal(t, "20", first[30])
	assert.Equal(t, "4.5", first[34])
	assert.Equal(t, "BUY", first[35])

	header := strings.Join(rows[0], ",")
	assert.Contains(t, header, "Delivery_Qty_Avg,Delivery_Qty_Baseline,Delivery_Qty_Spike")
	assert.Contains(t, header, "Delivery_Qty_Trend,Lookback_Days,Data_Points")
}

func TestExporterSteps(t *testing.T) {
	root := t.TempDir()
	e := NewExporter(filepath.Join(root, "exports"), arbor.NewLogger())
	e.now = func() time.Time { return time.Date(2024, 6, 3, 15, 30, 5, 0, time.UTC) }

	paths, err := e.Steps([]string{"M&M", "IDEA", "NODATA"}, sampleReport())
	require.NoError(t, err)
	require.Len(t, paths, 3)

	dir := filepath.Join(root, "step_exports")
	assert.Equal(t, filepath.Join(dir, "step1_symbols_20240603_153005.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "step2_delivery_data_20240603_153005.csv"), paths[1])
	assert.Equal(t, filepath.Join(dir, "step3_final_scored_20240603_153005.csv"), paths[2])

	read := func(path string) [][]string {
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		return rows
	}

	assert.Equal(t, [][]string{{"Symbol"}, {"M&M"}, {"IDEA"}, {"NODATA"}}, read(paths[0]))

	delivery := read(paths[1])
	require.Len(t, delivery, 2, "symbols without delivery data are left out")
	assert.Equal(t, StepColumns, delivery[0])
	assert.Equal(t, []string{"M&M", "3000", "1500", "1000", "3", "true", "45.5", model.TrendRising, "90", "20"}, delivery[1])

	scored := read(paths[2])
	require.Len(t, scored, 3)
	assert.Equal(t, Columns, scored[0])
}

func TestResultJSONCarriesDeliveryWindow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var decoded struct {
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Results, 2)
	first := decoded.Results[0]
	assert.Equal(t, 1000.0, first["delivery_qty_baseline"])
	assert.Equal(t, 90.0, first["lookback_days"])
	assert.Equal(t, 20.0, first["data_points"])
}

func TestExporterCSVWithMetadata(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, arbor.NewLogger())
	e.now = func() time.Time { return time.Date(2024, 6, 3, 15, 30, 5, 0, time.UTC) }

	path, err := e.CSV(sampleReport(), "", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "stock_analysis_20240603_153005.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasPrefix(text, "# NSE Stock Analysis Export\n"))
	assert.Contains(t, text, "# run_id: run-1\n")
	assert.Contains(t, text, "\n\nSymbol,Company,")
}

func TestExporterNamedFilesGetExtension(t *testing.T) {
	e := NewExporter(t.TempDir(), arbor.NewLogger())

	path, err := e.CSV(sampleReport(), "latest", false)
	require.NoError(t, err)
	assert.Equal(t, "latest.csv", filepath.Base(path))

	path, err = e.JSON(sampleReport(), "latest")
	require.NoError(t, err)
	assert.Equal(t, "latest.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Summary struct {
			RunID string `json:"run_id"`
			Buy   int    `json:"buy_signals"`
		} `json:"summary"`
		Results []map[string]interface{} `json:"results"`
		Failed  []string                 `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded.Summary.RunID)
	assert.Equal(t, 1, decoded.Summary.Buy)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, "BUY", decoded.Results[0]["signal"])
	assert.Equal(t, []string{"NODATA"}, decoded.Failed)
}
