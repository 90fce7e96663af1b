package main

import (
	"context"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/parser"
	"github.com/logflow/simlog/pkg/risk"
	"github.com/logflow/simlog/pkg/storage"
)

var (
	riskBKType      string
	riskMaxBK       int
	riskMeasurement string
	riskSensitive   []string
	riskWorkers     int
	riskOutput      string
	riskNoOriginal  bool
)

var riskCmd = &cobra.Command{
	Use:   "risk [log.xes ...]",
	Short: "Score the re-identification risk of event logs",
	Long: `Estimate case, trace and attribute disclosure for background knowledge
of length 1..max-bk. Without arguments the original logs of the configured
inputs and every simulated log in the output store are scored.

Examples:
  simlog risk
  simlog risk hospital.xes simulated_logs/Simulated_1_hospital.xes
  simlog risk --bk-type sequence --max-bk 3 --measurement worst_case -o Results/seq.xlsx`,
	RunE: runRisk,
}

func init() {
	riskCmd.Flags().StringVar(&riskBKType, "bk-type", "", "Background knowledge type (set, multiset, sequence)")
	riskCmd.Flags().IntVar(&riskMaxBK, "max-bk", 0, "Largest background knowledge length")
	riskCmd.Flags().StringVar(&riskMeasurement, "measurement", "", "Per-case aggregation (average, worst_case)")
	riskCmd.Flags().StringSliceVar(&riskSensitive, "sensitive", nil, "Case attributes for attribute disclosure")
	riskCmd.Flags().IntVar(&riskWorkers, "workers", 0, "Concurrent scorings")
	riskCmd.Flags().StringVarP(&riskOutput, "output", "o", "", "Summary table key in the output store (.csv or .xlsx)")
	riskCmd.Flags().BoolVar(&riskNoOriginal, "simulated-only", false, "Skip the original logs of configured inputs")
}

func runRisk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	if riskBKType != "" {
		cfg.Risk.BKType = riskBKType
	}
	if riskMaxBK > 0 {
		cfg.Risk.MaxBKLength = riskMaxBK
	}
	if riskMeasurement != "" {
		cfg.Risk.Measurement = riskMeasurement
	}
	if len(riskSensitive) > 0 {
		cfg.Risk.SensitiveAttributes = riskSensitive
	}
	if riskWorkers > 0 {
		cfg.Risk.Workers = riskWorkers
	}
	if riskOutput != "" {
		cfg.Output.Summary = riskOutput
	}

	opts, err := riskOptions(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	var logs []*model.Log
	if len(args) > 0 {
		logs, err = readLogFiles(ctx, args)
	} else {
		logs, err = defaultRiskLogs(ctx, store)
	}
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return serrors.New(serrors.CodeInvalidConfig, "no logs to score")
	}

	printer.Header(version)
	printer.Section("SCORING")
	printer.KeyValue("Logs", len(logs))
	printer.KeyValue("Knowledge", opts.BKType.String()+", lengths 1.."+strconv.Itoa(cfg.Risk.MaxBKLength))
	printer.KeyValue("Measurement", opts.Measurement.String())

	table, err := risk.Summarize(ctx, risk.NewSMS(opts), logs, cfg.Risk.MaxBKLength, cfg.Risk.Workers)
	if err != nil {
		return err
	}

	printer.Section("DISCLOSURE")
	printer.Table(table)

	if cfg.Output.Summary != "" {
		if err := writeTable(ctx, store, cfg.Output.Summary, table); err != nil {
			return err
		}
		printer.KeyValue("Summary", store.URI(cfg.Output.Summary))
	}

	logger.WithFields(logrus.Fields{
		"logs":   len(logs),
		"max_bk": cfg.Risk.MaxBKLength,
	}).Info("Risk scoring complete")
	printer.Done("SCORING COMPLETE", time.Since(start))
	return nil
}

func readLogFiles(ctx context.Context, paths []string) ([]*model.Log, error) {
	logs := make([]*model.Log, 0, len(paths))
	for _, p := range paths {
		log, err := parser.ReadFile(ctx, p, parser.DefaultConfig())
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// defaultRiskLogs returns the original log of every configured input
// followed by the simulated XES logs found in the store.
func defaultRiskLogs(ctx context.Context, store storage.Store) ([]*model.Log, error) {
	var logs []*model.Log
	if !riskNoOriginal {
		var paths []string
		for _, in := range cfg.Inputs {
			if in.Log != "" {
				paths = append(paths, sourceFromConfig(cfg, in).Log)
			}
		}
		originals, err := readLogFiles(ctx, paths)
		if err != nil {
			return nil, err
		}
		logs = append(logs, originals...)
	}

	keys, err := store.List(ctx, "Simulated_")
	if err != nil {
		return nil, err
	}
	p, err := parser.NewParser(parser.FormatXES, parser.DefaultConfig())
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if !strings.EqualFold(path.Ext(key), ".xes") {
			continue
		}
		log, err := readStoredLog(ctx, store, p, key)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}

func readStoredLog(ctx context.Context, store storage.Store, p parser.Parser, key string) (*model.Log, error) {
	r, err := store.Reader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	name := strings.TrimSuffix(filepath.Base(key), path.Ext(key))
	log, err := parser.ReadLog(ctx, p, name, r, parser.DefaultConfig())
	if err != nil {
		if se, ok := err.(*serrors.SimlogError); ok {
			return nil, se.WithContext("key", key)
		}
		return nil, err
	}
	return log, nil
}
