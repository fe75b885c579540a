package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/application/reconcile"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/config"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/logging"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
	"github.com/arrowlimo/arrow-limo-sub003/internal/report"
)

// Exit codes: 0 ran and wrote reports, 1 aborted before a report,
// 2 report written but some decisions failed to apply.
const (
	exitOK             = 0
	exitAborted        = 1
	exitPartialFailure = 2
)

func main() {
	var (
		configFile    = flag.String("config", "", "Configuration file path")
		apply         = flag.Bool("apply", false, "Write mode: persist linkage decisions (default is dry-run)")
		minConfidence = flag.Int("min-confidence", 0, "Minimum confidence tier to apply (0 = use config)")
		rematch       = flag.Bool("rematch", false, "Include already-linked targets in candidate generation")
		overridesPath = flag.String("overrides", "", "CSV of source_reference,target_id forced links")
		outDir        = flag.String("out", "", "Report output directory (overrides config)")
		tablesFlag    = flag.String("tables", "", "Comma-separated target tables to match against (empty = all)")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")

		posPath    = flag.String("pos", "", "Point-of-sale payments extract (CSV)")
		bankPath   = flag.String("bank", "", "Bank transactions extract (CSV)")
		legacyPath = flag.String("legacy", "", "Legacy deposits extract (CSV)")
		ledgerPath = flag.String("ledger", "", "External ledger extract (CSV)")
		emailPath  = flag.String("email", "", "Email receipts extract (CSV)")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = slog.LevelDebug.String()
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "reconcile")

	if *minConfidence > 0 {
		cfg.Apply.MinConfidence = *minConfidence
	}
	if *outDir != "" {
		cfg.Report.OutputDir = *outDir
	}

	tables, err := parseTables(*tablesFlag)
	if err != nil {
		logger.Error("Invalid -tables value", "error", err)
		os.Exit(exitAborted)
	}

	extracts := map[record.SourceSystem]string{
		record.SourcePOSPayment:      *posPath,
		record.SourceBankTransaction: *bankPath,
		record.SourceLegacyDeposit:   *legacyPath,
		record.SourceExternalLedger:  *ledgerPath,
		record.SourceEmailReceipt:    *emailPath,
	}

	sources, adapterStats := readExtracts(extracts, logger)
	if len(sources) == 0 {
		logger.Error("No source records staged; provide at least one extract flag")
		os.Exit(exitAborted)
	}

	var overrides extract.OverrideMap
	if *overridesPath != "" {
		overrides, err = extract.LoadOverrides(*overridesPath)
		if err != nil {
			logger.Error("Failed to load override mapping", "path", *overridesPath, "error", err)
			os.Exit(exitAborted)
		}
		logger.Info("Loaded override mapping", "entries", len(overrides))
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to open target store", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(exitAborted)
	}
	defer store.Close()

	logger.Info("Starting reconciliation",
		"staged", len(sources),
		"apply", *apply,
		"min_confidence", cfg.Apply.MinConfidence,
		"rematch", *rematch,
		"tables", *tablesFlag,
	)

	pipeline := reconcile.New(store, cfg.Matching, cfg.Resolver, overrides, logger)
	result, err := pipeline.Run(context.Background(), sources, reconcile.Options{
		Apply:         *apply,
		MinConfidence: cfg.Apply.MinConfidence,
		Rematch:       *rematch,
		TargetTables:  tables,
	})
	if err != nil {
		logger.Error("Reconciliation aborted", "error", err)
		os.Exit(exitAborted)
	}
	for sys, stats := range adapterStats {
		result.AdapterStats[sys] = stats
	}

	artifacts, err := report.New(cfg.Report.OutputDir, logger).Write(result)
	if err != nil {
		logger.Error("Failed to write report", "error", err)
		os.Exit(exitAborted)
	}
	logger.Info("Report written", "dir", artifacts.Dir)

	if len(result.Errors) > 0 {
		for _, applyErr := range result.Errors {
			logger.Error("Decision failed to apply", "error", applyErr)
		}
		os.Exit(exitPartialFailure)
	}
	os.Exit(exitOK)
}

// readExtracts stages every extract whose flag was provided. A bad row never
// aborts an extract; an unreadable file does abort the run.
func readExtracts(paths map[record.SourceSystem]string, logger *slog.Logger) ([]*record.SourceRecord, map[record.SourceSystem]*extract.Stats) {
	var sources []*record.SourceRecord
	stats := make(map[record.SourceSystem]*extract.Stats)
	for system, path := range paths {
		if path == "" {
			continue
		}
		records, st, err := extract.ReadExtract(path, system, logger)
		if err != nil {
			logger.Error("Failed to read extract", "system", system.String(), "path", path, "error", err)
			os.Exit(exitAborted)
		}
		logger.Info("Staged extract",
			"system", system.String(),
			"staged", st.Staged,
			"skipped", st.Skipped,
		)
		sources = append(sources, records...)
		stats[system] = st
	}
	return sources, stats
}

func parseTables(raw string) ([]record.TargetTable, error) {
	if raw == "" {
		return nil, nil
	}
	var tables []record.TargetTable
	for _, part := range strings.Split(raw, ",") {
		t := record.TargetTable(strings.TrimSpace(part))
		if !t.IsValid() {
			return nil, &extract.ParseError{Field: "tables", Reason: "unknown target table " + string(t)}
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func loadConfig(configFile string) *config.Config {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			slog.Error("Failed to load config file", "file", configFile, "error", err)
			os.Exit(exitAborted)
		}
		return cfg
	}
	return config.LoadOrEnv()
}
