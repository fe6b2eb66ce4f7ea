package archive

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"alphascreen/pkg/model"
)

type field int

const (
	fieldSymbol field = iota
	fieldSeries
	fieldTraded
	fieldDelivered
	fieldDeliveredPct
)

// columnCandidates lists, per canonical field, the header spellings seen across archive
// format revisions. The first header present in a file wins.
var columnCandidates = []struct {
	field field
	names []string
}{
	{fieldSymbol, []string{"SYMBOL", "TCKRSYMB", "SYMBOL_NAME"}},
	{fieldSeries, []string{"SERIES", "SCTYSRS"}},
	{fieldTraded, []string{"TTL_TRD_QNTY", "TOTTRDQTY", "TTLTRADGVOL", "TRADED_QTY", "QTY_TRADED"}},
	{fieldDelivered, []string{"DELIV_QTY", "DELIVERY_QTY", "DLVRY_QTY", "DELIVERABLE_QTY"}},
	{fieldDeliveredPct, []string{"DELIV_PER", "DELIVERY_PCT", "DLVRY_PER", "%DLY_QT_TO_TRADED_QTY"}},
}

const equitySeries = "EQ"

// resolveColumns maps canonical fields to column indexes of header
func resolveColumns(header []string) map[field]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	cols := make(map[field]int)
	for _, c := range columnCandidates {
		for _, name := range c.names {
			if i, ok := index[name]; ok {
				cols[c.field] = i
				break
			}
		}
	}
	return cols
}

// Parse converts a raw archive file into a day table.
// Rows outside the equity series and rows with malformed numbers are dropped.
func Parse(date time.Time, data []byte) (*model.DayTable, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrSchema, err)
	}
	cols := resolveColumns(header)

	symCol, ok := cols[fieldSymbol]
	if !ok {
		return nil, fmt.Errorf("%w: no symbol column", ErrSchema)
	}
	tradedCol, hasTraded := cols[fieldTraded]
	deliveredCol, hasDelivered := cols[fieldDelivered]
	pctCol, hasPct := cols[fieldDeliveredPct]
	seriesCol, hasSeries := cols[fieldSeries]
	if !hasTraded || (!hasDelivered && !hasPct) {
		return nil, fmt.Errorf("%w: missing quantity columns", ErrSchema)
	}

	table := &model.DayTable{Date: date, Records: make(map[string]model.DeliveryRecord)}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}

		sym := cell(row, symCol)
		if sym == "" {
			continue
		}
		if hasSeries && cell(row, seriesCol) != equitySeries {
			continue
		}

		traded, ok := number(cell(row, tradedCol))
		if !ok {
			continue
		}
		rec := model.DeliveryRecord{Symbol: sym, TradedQty: traded}

		if hasPct {
			pct, ok := number(cell(row, pctCol))
			if !ok {
				continue
			}
			rec.DeliveryPct = pct
		}
		if hasDelivered {
			qty, ok := number(cell(row, deliveredCol))
			if !ok {
				continue
			}
			rec.DeliveryQty = qty
		} else {
			rec.DeliveryQty = rec.DeliveryPct * traded / 100
		}
		if !hasPct && traded > 0 {
			rec.DeliveryPct = rec.DeliveryQty / traded * 100
		}

		table.Records[sym] = rec
	}

	if len(table.Records) == 0 {
		return nil, fmt.Errorf("%w: no equity rows", ErrDayUnavailable)
	}
	return table, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func number(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
