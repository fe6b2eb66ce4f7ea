package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"alphascreen/internal/common"
	"alphascreen/internal/export"
	"alphascreen/internal/market"
	"alphascreen/internal/scheduler"
	"alphascreen/internal/store"
	"alphascreen/internal/symbols"
	"alphascreen/internal/web"
	"alphascreen/pkg/model"
)

var (
	cfgFile  string
	logLevel string
	verbose  bool

	symbolList  string
	universe    string
	limit       int
	concurrency int
	format      string
	noDelivery  bool
	top         int
	exportFmt   string
	saveSteps   bool

	warmDays    int
	warmWorkers int

	port        int
	marketHours bool

	refresh bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "alphascreen",
		Short: "NSE equity screener combining trend, fundamentals and delivery data",
		Long: `AlphaScreen scores NSE listed equities on three axes:

  technical    - price against the 252 day and 260 week EMAs
  fundamental  - P/E, ROE, debt/equity and P/B ratings
  delivery     - delivered quantity spikes from the settlement archive

Each symbol gets a bounded score and a BUY, HOLD or AVOID signal.

Examples:
  alphascreen scan --universe nifty50 --top 15
  alphascreen scan --symbols TCS,INFY,RELIANCE --format json
  alphascreen analyze HDFCBANK
  alphascreen schedule --port 8080`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "alphascreen.yaml", "config file path (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Screen a universe and print the ranked results",
		RunE:  runScan,
	}
	scanCmd.Flags().StringVar(&symbolList, "symbols", "", "comma-separated symbols to screen")
	scanCmd.Flags().StringVar(&universe, "universe", "", "built-in universe: nifty50, fallback (default: full NSE equity list)")
	scanCmd.Flags().IntVar(&limit, "limit", 0, "screen at most this many symbols")
	scanCmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum concurrent remote calls")
	scanCmd.Flags().StringVar(&format, "format", "table", "output format: table, json, csv")
	scanCmd.Flags().BoolVar(&noDelivery, "no-delivery", false, "skip settlement archive delivery data")
	scanCmd.Flags().IntVar(&top, "top", 20, "rows to show in table output")
	scanCmd.Flags().StringVar(&exportFmt, "export", "", "also write the report to the export dir: csv, json, both")
	scanCmd.Flags().BoolVar(&saveSteps, "save-steps", false, "write symbols, delivery data and scored results to step_exports")

	analyzeCmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Show the full breakdown for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().BoolVar(&noDelivery, "no-delivery", false, "skip settlement archive delivery data")
	analyzeCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")

	warmupCmd := &cobra.Command{
		Use:   "warmup",
		Short: "Download recent settlement archive days into the cache",
		RunE:  runWarmup,
	}
	warmupCmd.Flags().IntVar(&warmDays, "days", 0, "trading days to load (default from config)")
	warmupCmd.Flags().IntVar(&warmWorkers, "workers", 0, "parallel downloads (default from config)")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scans on a cron schedule and serve the latest results",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().IntVar(&port, "port", 0, "serve the results API on this port (0 disables)")
	scheduleCmd.Flags().BoolVar(&marketHours, "market-hours", false, "only scan while the exchange is open")
	scheduleCmd.Flags().BoolVar(&noDelivery, "no-delivery", false, "skip settlement archive delivery data")

	universeCmd := &cobra.Command{
		Use:   "universe",
		Short: "Print the symbol universe",
		RunE:  runUniverse,
	}
	universeCmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached list and download again")
	universeCmd.Flags().IntVar(&limit, "limit", 0, "keep at most this many symbols")

	rootCmd.AddCommand(scanCmd, analyzeCmd, warmupCmd, scheduleCmd, universeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(msg string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\n" + msg)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func newProgressBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override config with CLI flags
	if cmd.Flags().Changed("concurrency") {
		cfg.Fetcher.MaxConcurrent = concurrency
	}
	if cmd.Flags().Changed("limit") {
		cfg.Universe.Limit = limit
	}
	switch format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	a, err := newApp(cfg, !noDelivery)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext("Interrupted. Finishing current batch...")
	defer cancel()

	syms, err := resolveSymbols(ctx, a)
	if err != nil {
		return err
	}
	if len(syms) == 0 {
		return fmt.Errorf("no symbols to screen")
	}

	if format == "table" {
		fmt.Printf("Screening %d symbols...\n\n", len(syms))
	}
	if a.archive != nil && !a.archive.Warmed() && format == "table" {
		fmt.Printf("Warming delivery archive (%d trading days)...\n", cfg.Archive.WarmupDays)
	}

	start := time.Now()
	var bar *progressbar.ProgressBar
	if format == "table" {
		bar = newProgressBar(len(syms), "Scanning")
		a.pipeline.SetProgressCallback(func(done, total int) {
			bar.Set(done)
		})
	}

	report, runErr := a.pipeline.Run(ctx, syms)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("screening: %w", runErr)
	}

	if exportFmt != "" {
		if err := exportReport(a, report, exportFmt); err != nil {
			return err
		}
	}
	if saveSteps {
		if _, err := a.exporter.Steps(syms, report); err != nil {
			return fmt.Errorf("writing step exports: %w", err)
		}
	}

	switch format {
	case "json":
		return outputJSON(report)
	case "csv":
		return export.WriteCSV(os.Stdout, report.Results)
	}

	outputTable(report, top)
	outputSummary(report, time.Since(start))
	if runErr != nil {
		fmt.Println("\nScan interrupted: results are partial")
	}
	return nil
}

// resolveSymbols picks explicit symbols, a built-in universe or the downloaded equity list
func resolveSymbols(ctx context.Context, a *app) ([]string, error) {
	var syms []string
	switch {
	case symbolList != "":
		syms = strings.Split(symbolList, ",")
	case universe != "":
		syms = symbols.GetUniverse(symbols.Universe(universe))
		if syms == nil {
			return nil, fmt.Errorf("unknown universe: %s", universe)
		}
	default:
		var err error
		syms, err = a.loader.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading symbols: %w", err)
		}
	}
	if n := a.cfg.Universe.Limit; n > 0 && len(syms) > n {
		syms = syms[:n]
	}
	return syms, nil
}

func exportReport(a *app, report *model.RunReport, kind string) error {
	var paths []string
	if kind == "csv" || kind == "both" {
		path, err := a.exporter.CSV(report, "", a.cfg.Export.Metadata)
		if err != nil {
			return fmt.Errorf("exporting csv: %w", err)
		}
		paths = append(paths, path)
	}
	if kind == "json" || kind == "both" {
		path, err := a.exporter.JSON(report, "")
		if err != nil {
			return fmt.Errorf("exporting json: %w", err)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return fmt.Errorf("unknown export format %q", kind)
	}
	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "Exported %s\n", p)
	}
	return nil
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func signed(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}

func deliveryCell(r model.Result) string {
	if r.DeliveryTrend == "N/A" || r.DeliveryTrend == "" {
		return "-"
	}
	if r.DeliverySpike {
		return fmt.Sprintf("%.1fx spike", r.SpikeRatio)
	}
	return r.DeliveryTrend
}

func outputTable(report *model.RunReport, rows int) {
	if len(report.Results) == 0 {
		fmt.Println("No symbols could be scored.")
		return
	}

	results := report.Results
	if rows > 0 && len(results) > rows {
		results = results[:rows]
	}

	fmt.Printf("Top %d of %d scored symbols:\n\n", len(results), len(report.Results))

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Company", "Price", "vs D-EMA", "vs W-EMA", "Trend", "Quality", "Delivery", "Score", "Signal"}),
	)
	for _, r := range results {
		table.Append([]string{
			r.Symbol,
			truncate(r.Company, 18),
			fmt.Sprintf("%.2f", r.CurrentPrice),
			signed(r.DailyDiffPct),
			signed(r.WeeklyDiffPct),
			r.OverallTrend,
			fmt.Sprintf("%.2f", r.QualityScore),
			deliveryCell(r),
			fmt.Sprintf("%.2f", r.TotalScore),
			string(r.Signal),
		})
	}
	table.Render()
}

func outputSummary(report *model.RunReport, elapsed time.Duration) {
	s := report.Summary
	fmt.Println("\n--- Summary ---")
	fmt.Printf("Analyzed: %d | Failed: %d | Sectors: %d\n", s.Total, s.Failed, s.Sectors)
	fmt.Printf("BUY: %d | HOLD: %d | AVOID: %d\n", s.Buy, s.Hold, s.Avoid)
	if s.Total > 0 {
		fmt.Printf("Average score: %.2f | Top score: %.2f\n", s.AvgScore, s.TopScore)
	}
	fmt.Printf("Run %s finished in %s\n", s.RunID, elapsed.Round(time.Second))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, !noDelivery)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext("Interrupted.")
	defer cancel()

	res, err := a.pipeline.AnalyzeOne(ctx, args[0])
	if err != nil {
		return err
	}
	if format == "json" {
		return outputJSON(res)
	}
	outputDetails(res)
	return nil
}

func outputDetails(r *model.Result) {
	fmt.Printf("\n[%s] %s\n", r.Symbol, r.Company)
	fmt.Printf("  Sector: %s | Industry: %s | Market cap: %.0f Cr\n", r.Sector, r.Industry, r.MarketCap)

	fmt.Println("\n  Technical")
	fmt.Printf("    Price: %.2f | Trend: %s (%s, %d/2 aligned)\n", r.CurrentPrice, r.OverallTrend, r.TrendStrength, r.Alignment)
	fmt.Printf("    Daily EMA 252:  %.2f (%s, slope %s)\n", r.DailyEMA, signed(r.DailyDiffPct), signed(r.DailySlopePct))
	fmt.Printf("    Weekly EMA 260: %.2f (%s, slope %s)\n", r.WeeklyEMA, signed(r.WeeklyDiffPct), signed(r.WeeklySlopePct))

	fmt.Println("\n  Fundamental")
	fmt.Printf("    P/E: %.2f | ROE: %.2f%% | Debt/Equity: %.2f | P/B: %.2f\n", r.PE, r.ROE, r.DebtToEquity, r.PB)
	fmt.Printf("    Quality score: %.2f\n", r.QualityScore)

	fmt.Println("\n  Delivery")
	if r.DeliveryTrend == "N/A" {
		fmt.Println("    No archive data")
	} else {
		fmt.Printf("    Latest: %.0f | Average: %.0f | Baseline: %.0f | Ratio: %.2fx | Spike: %t\n",
			r.DeliveryQty, r.DeliveryQtyAvg, r.DeliveryBaseline, r.SpikeRatio, r.DeliverySpike)
		fmt.Printf("    Delivery %%: %.2f | Trend: %s | %d of %d days\n", r.DeliveryPct, r.DeliveryTrend, r.DataPoints, r.LookbackDays)
	}

	fmt.Println("\n  Score")
	fmt.Printf("    Technical %.2f + Fundamental %.2f + Delivery %.2f = %.2f\n",
		r.TechnicalScore, r.FundamentalScore, r.DeliveryScore, r.TotalScore)
	fmt.Printf("    Signal: %s\n", r.Signal)
}

func runWarmup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.archive == nil {
		return fmt.Errorf("archive is disabled in config")
	}

	ctx, cancel := signalContext("Interrupted. Stopping warm-up...")
	defer cancel()

	days := cfg.Archive.WarmupDays
	if warmDays > 0 {
		days = warmDays
	}
	fmt.Printf("Loading %d trading days of delivery data...\n", days)

	start := time.Now()
	cached := a.archive.Warmup(ctx, days, warmWorkers)
	st := a.archive.Stats()

	fmt.Printf("\nCached %d of %d days in %s\n", cached, days, time.Since(start).Round(time.Second))
	if st.Days > 0 {
		fmt.Printf("Range: %s to %s | Unavailable: %d\n",
			st.Oldest.Format("2006-01-02"), st.Newest.Format("2006-01-02"), st.Absent)
	}
	if db, ok := a.store.(*store.SQLiteStore); ok {
		if persisted, err := db.Days(ctx); err == nil {
			fmt.Printf("Persisted in %s: %d days\n", cfg.Store.SQLitePath, len(persisted))
		}
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("market-hours") {
		cfg.Schedule.MarketHoursOnly = marketHours
	}

	a, err := newApp(cfg, !noDelivery)
	if err != nil {
		return err
	}
	defer a.Close()

	scan := scheduler.ScanFunc(func(ctx context.Context) (*model.RunReport, error) {
		return a.pipeline.RunUniverse(ctx, a.loader)
	})
	var warmer scheduler.Warmer
	if a.archive != nil {
		warmer = a.archive
	}

	sched := scheduler.New(scheduler.Config{
		ScanCron:        cfg.Schedule.ScanCron,
		WarmupCron:      cfg.Schedule.WarmupCron,
		WarmupDays:      cfg.Archive.WarmupDays,
		WarmupWorkers:   cfg.Archive.WarmupWorkers,
		MarketHoursOnly: cfg.Schedule.MarketHoursOnly,
	}, scan, warmer, a.logger)
	sched.OnReport(func(report *model.RunReport) {
		path, err := a.exporter.CSV(report, "", cfg.Export.Metadata)
		if err != nil {
			a.logger.Error().Err(err).Msg("Scheduled export failed")
			return
		}
		a.logger.Info().Str("path", path).Msg("Scheduled report exported")
	})
	if err := sched.Register(); err != nil {
		return err
	}

	var srv *web.Server
	if port > 0 {
		srv = web.NewServer(a.pipeline, sched, a.logger)
		common.SafeGo(a.logger, "results-api", func() {
			if err := srv.Start(port); err != nil {
				a.logger.Error().Err(err).Msg("Results API stopped")
			}
		})
	}

	sched.Start()
	next := sched.Next()
	api := "disabled"
	if port > 0 {
		api = fmt.Sprintf("http://localhost:%d/api", port)
	}
	storage := cfg.Store.SQLitePath
	if storage == "" {
		storage = "memory"
	}
	common.PrintBanner(a.logger, [][2]string{
		{"Scan", cfg.Schedule.ScanCron},
		{"Warm-up", cfg.Schedule.WarmupCron},
		{"Delivery", fmt.Sprintf("%t", a.archive != nil)},
		{"Storage", storage},
		{"Results API", api},
		{"Market", market.StatusAt(market.DefaultSchedule(), time.Now()).Reason},
		{"Next scan", fmt.Sprintf("%s (in %s)", next.Format("2006-01-02 15:04:05 MST"), market.FormatDuration(time.Until(next)))},
	})
	fmt.Println("Press Ctrl+C to stop")

	ctx, cancel := signalContext("Shutting down...")
	defer cancel()
	<-ctx.Done()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Results API shutdown")
		}
	}
	sched.Stop()
	common.PrintShutdownBanner(a.logger)
	return nil
}

func runUniverse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("limit") {
		cfg.Universe.Limit = limit
	}
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext("Interrupted.")
	defer cancel()

	syms, err := a.loader.Load(ctx, refresh)
	if err != nil {
		return err
	}

	fmt.Printf("%d symbols\n\n", len(syms))
	const perRow = 8
	for i := 0; i < len(syms); i += perRow {
		end := i + perRow
		if end > len(syms) {
			end = len(syms)
		}
		row := make([]string, 0, perRow)
		for _, s := range syms[i:end] {
			row = append(row, fmt.Sprintf("%-12s", s))
		}
		fmt.Println(strings.TrimRight(strings.Join(row, " "), " "))
	}
	return nil
}
