package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/skuflow/skuflow/internal/app"
	"github.com/skuflow/skuflow/pkg/cleaner"
	skerrors "github.com/skuflow/skuflow/pkg/errors"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/pipeline"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/storage"
	"github.com/skuflow/skuflow/pkg/table"
	"github.com/skuflow/skuflow/pkg/transform"
	"github.com/skuflow/skuflow/pkg/tui"
	"github.com/skuflow/skuflow/pkg/validation"
	"github.com/skuflow/skuflow/pkg/watch"
)

// Command flags
var (
	delimiterFlag string
	maxRowsFlag   int

	processAfterUpload bool

	rerunFlag            bool
	noRollbackFlag       bool
	batchSizeFlag        int
	duplicateKeepFlag    string
	noDedupFlag          bool
	outlierMethodFlag    string
	outlierThresholdFlag float64
	removeOutliersFlag   bool
	flagZeroQtyFlag      bool
	priceJumpBySKUFlag   bool
	encodingFlag         string
	aggregateFlag        string
	currencySourceFlag   string
	currencyTargetFlag   string
	currencyRateFlag     float64
	jsonFlag             bool
	showErrorsFlag       int

	previewRowsFlag int

	listStatusFlag string
	listLimitFlag  int

	salesSKUFlag     string
	salesSummaryFlag bool
	salesOffsetFlag  int
	salesLimitFlag   int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Detect the schema of a file and validate it without registering it",
	Example: `  skuflow inspect march.csv
  skuflow inspect stock.txt --delimiter ';'`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Register files as uploads",
	Long: `Register one or more files. Each file is checked against the allowed
extensions and size limit, profiled and validated; the schema and the
validation report are stored with the upload.`,
	Example: `  skuflow upload march.csv april.xlsx
  skuflow upload --process march.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var mapCmd = &cobra.Command{
	Use:   "map <upload-id> <column=role>...",
	Short: "Confirm the semantic role of upload columns",
	Long: fmt.Sprintf(`Store a user-confirmed column mapping used by later runs.

Roles: %s`, joinMappings()),
	Example: `  skuflow map 5f2c... qty=quantity "list price=list_price" notes=unmapped`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runMap,
}

var processCmd = &cobra.Command{
	Use:   "process <upload-id>",
	Short: "Clean, transform and persist an upload",
	Long: `Run the processing pipeline on an upload:
load → detect → clean → transform → revalidate → persist.

The upload moves to processing, then to processed (also when single rows
fail) or error. Finished uploads are only processed again with --rerun.`,
	Example: `  skuflow process 5f2c...
  skuflow process 5f2c... --rerun --keep last --remove-outliers
  skuflow process 5f2c... --currency-source EUR --currency-target USD --currency-rate 1.08`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var previewCmd = &cobra.Command{
	Use:   "preview <upload-id>",
	Short: "Show cleaned records without persisting them",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

var statusCmd = &cobra.Command{
	Use:   "status <upload-id>",
	Short: "Show an upload's status and latest report",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var salesCmd = &cobra.Command{
	Use:   "sales <upload-id>",
	Short: "Query the persisted records of an upload",
	Long: `List an upload's persisted sales records, newest date first, or
summarize them with --summary: total and average quantity and revenue,
unique SKUs and the date range. Parquet output is not queryable.`,
	Example: `  skuflow sales 5f2c...
  skuflow sales 5f2c... --sku SKU-001 --offset 100 --limit 50
  skuflow sales 5f2c... --summary --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSales,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploads, newest first",
	RunE:  runList,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Register files dropped into the inbox directory",
	Long: `Watch the inbox directory and register every file once it stops
changing. Handled files move to done/ or failed/. With watch.process
enabled each upload is processed right away.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or save the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "List the config files that were applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := cfgManager.GetPaths()
		if len(paths) == 0 {
			fmt.Println("No config files found; using defaults.")
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to ~/.skuflow/config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfgManager.Save(); err != nil {
			return err
		}
		fmt.Println("Configuration saved.")
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&delimiterFlag, "delimiter", "", "Field delimiter (detected when empty)")
	inspectCmd.Flags().IntVar(&maxRowsFlag, "max-rows", 0, "Read at most n data rows (0 = all)")

	uploadCmd.Flags().BoolVar(&processAfterUpload, "process", false, "Process each upload after registering it")

	f := processCmd.Flags()
	f.BoolVar(&rerunFlag, "rerun", false, "Process a finished upload again, replacing its records")
	f.BoolVar(&noRollbackFlag, "no-rollback", false, "Keep records committed by a failed run")
	f.IntVar(&batchSizeFlag, "batch-size", 0, "Records per commit (default from config)")
	f.StringVar(&duplicateKeepFlag, "keep", "", "Duplicate survivor: first, last or none")
	f.BoolVar(&noDedupFlag, "no-dedup", false, "Keep duplicate rows")
	f.StringVar(&outlierMethodFlag, "outlier-method", "", "Outlier statistic: iqr or zscore")
	f.Float64Var(&outlierThresholdFlag, "outlier-threshold", 0, "Outlier cutoff (0 = method default)")
	f.BoolVar(&removeOutliersFlag, "remove-outliers", false, "Drop outliers instead of flagging them")
	f.BoolVar(&flagZeroQtyFlag, "flag-zero-quantities", false, "Flag rows with a zero quantity")
	f.BoolVar(&priceJumpBySKUFlag, "price-jump-by-sku", false, "Compare prices with the SKU median")
	f.StringVar(&encodingFlag, "encoding", "", "Category encoding: none, label or onehot")
	f.StringVar(&aggregateFlag, "aggregate", "", "Aggregate by period: none, day, week or month")
	f.StringVar(&currencySourceFlag, "currency-source", "", "Currency of the uploaded prices")
	f.StringVar(&currencyTargetFlag, "currency-target", "", "Convert prices into this currency")
	f.Float64Var(&currencyRateFlag, "currency-rate", 0, "Exchange rate from source to target")
	f.BoolVar(&jsonFlag, "json", false, "Print the report as JSON")
	f.IntVar(&showErrorsFlag, "show-errors", 20, "Row entries to list")
	uploadCmd.Flags().AddFlagSet(f)

	previewCmd.Flags().IntVarP(&previewRowsFlag, "rows", "n", 0, "Records to show (default from config)")
	previewCmd.Flags().AddFlagSet(f)

	statusCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the upload as JSON")

	listCmd.Flags().StringVar(&listStatusFlag, "status", "", "Only uploads in this status")
	listCmd.Flags().IntVar(&listLimitFlag, "limit", 50, "Maximum uploads to list")

	salesCmd.Flags().StringVar(&salesSKUFlag, "sku", "", "Only records of this SKU")
	salesCmd.Flags().BoolVar(&salesSummaryFlag, "summary", false, "Print aggregates instead of records")
	salesCmd.Flags().IntVar(&salesOffsetFlag, "offset", 0, "Records to skip")
	salesCmd.Flags().IntVar(&salesLimitFlag, "limit", storage.DefaultPageSize,
		fmt.Sprintf("Records to show (at most %d)", storage.MaxPageSize))
	salesCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the result as JSON")

	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)
	rootCmd.AddCommand(inspectCmd, uploadCmd, mapCmd, processCmd, previewCmd, statusCmd, salesCmd, listCmd, watchCmd, configCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := cfgManager.Get()

	opts := table.ReadOptions{MaxRows: maxRowsFlag}
	if delimiterFlag != "" {
		opts.Delimiter = []rune(delimiterFlag)[0]
	}
	raw, err := table.ReadFile(ctx, args[0], opts)
	if err != nil {
		return err
	}
	s, err := schema.NewDetector(app.DetectorConfig(cfg)).Detect(raw)
	if err != nil {
		return err
	}
	report := validation.NewValidator(app.Thresholds(cfg)).Validate(raw, s)

	tui.PrintHeader(os.Stdout, version)
	tui.PrintSchema(os.Stdout, s)
	tui.PrintValidation(os.Stdout, "validation", report)
	fmt.Println()
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, pipeline.WithProgress(newProgress().update))
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	var opts pipeline.ProcessingOptions
	if processAfterUpload {
		if opts, err = processingOptions(cmd); err != nil {
			return err
		}
	}

	var failed skerrors.MultiError
	for _, path := range args {
		reg, err := a.Uploads.RegisterFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed.Add(err)
			continue
		}
		tui.PrintUpload(os.Stdout, reg.Upload)
		tui.PrintSchema(os.Stdout, reg.Schema)
		tui.PrintValidation(os.Stdout, "validation", reg.Report)
		fmt.Println()

		if processAfterUpload {
			if err := process(ctx, a, reg.Upload.ID, opts); err != nil {
				failed.Add(err)
			}
		}
	}
	return failed.Combined()
}

func runMap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mapping := make(map[string]schema.Mapping, len(args)-1)
	for _, arg := range args[1:] {
		col, role, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return fmt.Errorf("invalid mapping %q (want column=role)", arg)
		}
		m, err := schema.ParseMapping(strings.TrimSpace(role))
		if err != nil {
			return err
		}
		mapping[strings.TrimSpace(col)] = m
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if err := a.Uploads.SetMapping(ctx, args[0], mapping); err != nil {
		return err
	}
	fmt.Printf("Mapping saved for %s.\n", args[0])
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := processingOptions(cmd)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, pipeline.WithProgress(newProgress().update))
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	return process(ctx, a, args[0], opts)
}

func process(ctx context.Context, a *app.App, id string, opts pipeline.ProcessingOptions) error {
	report, err := a.Orchestrator.Process(ctx, id, opts)
	if report != nil {
		if jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			tui.PrintProcessingReport(os.Stdout, report, showErrorsFlag)
		}
	}
	return err
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := processingOptions(cmd)
	if err != nil {
		return err
	}
	n := previewRowsFlag
	if n <= 0 {
		n = cfgManager.Get().Pipeline.PreviewRows
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	recs, report, err := a.Orchestrator.Preview(ctx, args[0], opts, n)
	if err != nil {
		return err
	}
	tui.PrintRecords(os.Stdout, recs)
	fmt.Printf("  %s\n\n", report.Summary)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	u, err := a.State.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	}

	tui.PrintUpload(os.Stdout, u)
	if len(u.LastReport) > 0 {
		var report pipeline.ProcessingReport
		if err := json.Unmarshal(u.LastReport, &report); err != nil {
			return fmt.Errorf("stored report is unreadable: %w", err)
		}
		tui.PrintProcessingReport(os.Stdout, &report, showErrorsFlag)
		return nil
	}
	if len(u.ValidationReport) > 0 {
		var report validation.Report
		if err := json.Unmarshal(u.ValidationReport, &report); err != nil {
			return fmt.Errorf("stored validation report is unreadable: %w", err)
		}
		tui.PrintValidation(os.Stdout, "validation", &report)
		fmt.Println()
	}
	return nil
}

func runSales(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	reader, ok := a.Records.(storage.Reader)
	if !ok {
		return skerrors.Newf(skerrors.CodeConfig, "records driver %q cannot be queried", a.Config.Storage.RecordsDriver)
	}
	if _, err := a.State.Get(ctx, args[0]); err != nil {
		return err
	}

	var result any
	if salesSummaryFlag {
		summary, err := reader.Summary(ctx, args[0])
		if err != nil {
			return err
		}
		if !jsonFlag {
			tui.PrintSalesSummary(os.Stdout, summary)
			return nil
		}
		result = summary
	} else {
		offset, limit := storage.Page(salesOffsetFlag, salesLimitFlag)
		recs, err := reader.Records(ctx, args[0], salesSKUFlag, offset, limit)
		if err != nil {
			return err
		}
		if !jsonFlag {
			tui.PrintSalesPage(os.Stdout, recs, offset)
			return nil
		}
		if recs == nil {
			recs = []model.SalesRecord{}
		}
		result = recs
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	uploads, err := a.State.List(ctx, model.Status(listStatusFlag), listLimitFlag)
	if err != nil {
		return err
	}
	tui.PrintHeader(os.Stdout, version)
	tui.PrintUploads(os.Stdout, uploads)

	stats, err := a.State.Stats(ctx)
	if err != nil {
		return err
	}
	tui.PrintStats(os.Stdout, stats)
	fmt.Println()
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := cfgManager.Get()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	opts, err := app.ProcessingOptions(cfg)
	if err != nil {
		return err
	}

	handle := func(ctx context.Context, path string) error {
		reg, err := a.Uploads.RegisterFile(ctx, path)
		if err != nil {
			return err
		}
		if !cfg.Watch.Process {
			return nil
		}
		report, err := a.Orchestrator.Process(ctx, reg.Upload.ID, opts)
		if err != nil {
			return err
		}
		logger.Info("inbox upload processed", zap.String("upload_id", reg.Upload.ID), zap.String("summary", report.Summary))
		return nil
	}

	inbox, err := watch.NewInbox(watch.Config{
		Dir:        cfg.Watch.Inbox,
		Debounce:   cfg.Watch.Debounce,
		Extensions: cfg.Upload.AllowedExtensions,
	}, handle, logger.Named("watch"))
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", cfg.Watch.Inbox)
	if err := inbox.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfgManager.Get())
	if err != nil {
		return err
	}
	for _, p := range cfgManager.GetPaths() {
		fmt.Printf("# loaded: %s\n", p)
	}
	os.Stdout.Write(data)
	return nil
}

// processingOptions applies the process flags over the configured options.
func processingOptions(cmd *cobra.Command) (pipeline.ProcessingOptions, error) {
	opts, err := app.ProcessingOptions(cfgManager.Get())
	if err != nil {
		return opts, err
	}
	flags := cmd.Flags()

	opts.Rerun = rerunFlag
	if noRollbackFlag {
		opts.RollbackOnFailure = false
	}
	if batchSizeFlag > 0 {
		opts.BatchSize = batchSizeFlag
	}

	c := &opts.Cleaning
	if flags.Changed("keep") {
		if c.DuplicateKeep, err = cleaner.ParseDuplicateKeep(duplicateKeepFlag); err != nil {
			return opts, err
		}
	}
	if noDedupFlag {
		c.RemoveDuplicates = false
	}
	if flags.Changed("outlier-method") {
		if c.OutlierMethod, err = cleaner.ParseOutlierMethod(outlierMethodFlag); err != nil {
			return opts, err
		}
	}
	if flags.Changed("outlier-threshold") {
		c.OutlierThreshold = outlierThresholdFlag
	}
	if removeOutliersFlag {
		c.DetectOutliers = true
		c.RemoveOutliers = true
	}
	if flagZeroQtyFlag {
		c.FlagZeroQuantities = true
	}
	if priceJumpBySKUFlag {
		c.PriceJumpBySKU = true
	}

	t := &opts.Transform
	if flags.Changed("encoding") {
		if t.CategoryEncoding, err = transform.ParseCategoryEncoding(encodingFlag); err != nil {
			return opts, err
		}
	}
	if flags.Changed("aggregate") {
		if t.AggregatePeriod, err = transform.ParsePeriod(aggregateFlag); err != nil {
			return opts, err
		}
	}
	if currencySourceFlag != "" || currencyTargetFlag != "" || currencyRateFlag > 0 {
		t.Currency.Enabled = true
		if currencySourceFlag != "" {
			t.Currency.Source = currencySourceFlag
		}
		if currencyTargetFlag != "" {
			t.Currency.Target = currencyTargetFlag
		}
		if currencyRateFlag > 0 {
			t.Currency.Rate = currencyRateFlag
		}
	}
	return opts, nil
}

// progress renders stage changes and a bar for persistence.
type progress struct {
	stage string
	bar   *progressbar.ProgressBar
}

func newProgress() *progress {
	return &progress{}
}

func (p *progress) update(stage string, done, total int64) {
	if stage != p.stage {
		if p.bar != nil {
			p.bar.Finish()
			p.bar = nil
		}
		p.stage = stage
		fmt.Fprintf(os.Stderr, "  ▸ %s\n", stage)
	}
	if stage != pipeline.StagePersist || total == 0 {
		return
	}
	if p.bar == nil {
		p.bar = tui.ShowProgress(os.Stderr, total, "  persisting")
	}
	p.bar.Set64(done)
	if done >= total {
		p.bar.Finish()
		p.bar = nil
	}
}

func joinMappings() string {
	names := make([]string, len(schema.Mappings))
	for i, m := range schema.Mappings {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
