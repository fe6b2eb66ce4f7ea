package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"alphascreen/internal/market"
	"alphascreen/pkg/model"
)

type countingWarmer struct{ calls int32 }

func (w *countingWarmer) Warmup(context.Context, int, int) int {
	atomic.AddInt32(&w.calls, 1)
	return 3
}

func TestRegisterRejectsInvalidCron(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanCron = "every hour"
	s := New(cfg, ScanFunc(func(context.Context) (*model.RunReport, error) { return &model.RunReport{}, nil }), nil, arbor.NewLogger())
	assert.Error(t, s.Register())
}

func TestRegisterAddsWarmupOnlyWithWarmer(t *testing.T) {
	scan := ScanFunc(func(context.Context) (*model.RunReport, error) { return &model.RunReport{}, nil })

	s := New(DefaultConfig(), scan, nil, arbor.NewLogger())
	require.NoError(t, s.Register())
	assert.Len(t, s.cron.Entries(), 1)

	s = New(DefaultConfig(), scan, &countingWarmer{}, arbor.NewLogger())
	require.NoError(t, s.Register())
	assert.Len(t, s.cron.Entries(), 2)
}

func TestScanTaskReportsAndCounts(t *testing.T) {
	var reported *model.RunReport
	scan := ScanFunc(func(context.Context) (*model.RunReport, error) {
		return &model.RunReport{Summary: model.Summary{Total: 4, Buy: 1}}, nil
	})
	s := New(DefaultConfig(), scan, nil, arbor.NewLogger())
	s.OnReport(func(r *model.RunReport) { reported = r })

	s.RunScanNow()
	require.NotNil(t, reported)
	assert.Equal(t, 4, reported.Summary.Total)
	assert.Equal(t, 1, s.Runs())
	assert.False(t, s.LastScan().IsZero())
}

func TestScanFailureAndPanicAreContained(t *testing.T) {
	calls := 0
	scan := ScanFunc(func(context.Context) (*model.RunReport, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("provider down")
		}
		panic("unexpected")
	})
	s := New(DefaultConfig(), scan, nil, arbor.NewLogger())

	s.RunScanNow()
	s.RunScanNow()
	assert.Equal(t, 0, s.Runs())
	// the in-progress flag is released after a panic
	assert.False(t, s.scanning)
}

func TestMarketHoursOnlySkipsClosedMarket(t *testing.T) {
	var calls int32
	scan := ScanFunc(func(context.Context) (*model.RunReport, error) {
		atomic.AddInt32(&calls, 1)
		return &model.RunReport{}, nil
	})
	cfg := DefaultConfig()
	cfg.MarketHoursOnly = true
	s := New(cfg, scan, nil, arbor.NewLogger())

	// Saturday
	s.now = func() time.Time { return time.Date(2024, 6, 8, 11, 0, 0, 0, market.Location()) }
	s.RunScanNow()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	// Monday mid-session
	s.now = func() time.Time { return time.Date(2024, 6, 10, 11, 0, 0, 0, market.Location()) }
	s.RunScanNow()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWarmupTask(t *testing.T) {
	w := &countingWarmer{}
	s := New(DefaultConfig(), ScanFunc(func(context.Context) (*model.RunReport, error) { return &model.RunReport{}, nil }), w, arbor.NewLogger())
	s.warmupTask()
	assert.Equal(t, int32(1), atomic.LoadInt32(&w.calls))
}

func TestStartStop(t *testing.T) {
	s := New(DefaultConfig(), ScanFunc(func(context.Context) (*model.RunReport, error) { return &model.RunReport{}, nil }), nil, arbor.NewLogger())
	require.NoError(t, s.Register())
	s.Start()
	assert.False(t, s.Next().IsZero())
	s.Stop()
}
