/*
main.go - Batch payroll script runner

PURPOSE:
  Executes a payroll script (AddEmp, ChgEmp, TimeCard, SalesReceipt,
  ServiceCharge, Payday, DelEmp) against the configured repository and
  prints each Payday's register to stdout.

USAGE:
  payroll [flags] script.txt
  payroll [flags] - < script.txt

FLAGS:
  -config       YAML config file (optional)
  -env          .env file (default: .env)
  -continue     keep going after rejected input lines
  -register     directory for PDF registers (overrides payroll.register_dir)
  -memory       use an in-memory SQLite database

EXIT STATUS:
  0 all lines executed, 1 a line failed or setup failed, 2 usage
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/report"
	"github.com/warp/payroll-engine/store"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", ".env", "dotenv file")
	continueOnError := flag.Bool("continue", false, "continue after rejected lines")
	registerDir := flag.String("register", "", "PDF register directory")
	inMemory := flag.Bool("memory", false, "use an in-memory database")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] script.txt|-\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *inMemory {
		cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}
	}
	if *registerDir != "" {
		cfg.Payroll.RegisterDir = *registerDir
	}

	res, err := run(context.Background(), cfg, flag.Arg(0), os.Stdout, *continueOnError, logger)
	if err != nil {
		logger.Error("script failed", "error", err)
		os.Exit(1)
	}
	logger.Info("script complete", "executed", res.Executed, "failed", res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, scriptPath string, out io.Writer, continueOnError bool, logger *slog.Logger) (factory.ExecResult, error) {
	in, err := openScript(scriptPath)
	if err != nil {
		return factory.ExecResult{}, err
	}
	defer in.Close()

	script, err := factory.NewCommandFactory().ParseScript(in)
	if err != nil {
		return factory.ExecResult{}, err
	}

	opened, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return factory.ExecResult{}, err
	}
	defer opened.Close()

	sinks := payroll.MultiSink{payroll.NewTextSink(out)}
	if cfg.Payroll.RegisterDir != "" {
		sinks = append(sinks, report.NewPDFRegister(cfg.Payroll.RegisterDir, logger))
	}
	overtime, err := payroll.ParseOvertimeMode(cfg.Payroll.OvertimeMode)
	if err != nil {
		return factory.ExecResult{}, err
	}

	target := factory.Target{
		Processor: payroll.NewProcessor(opened.Repo),
		Runner: payroll.NewRunner(opened.Repo, sinks, payroll.RunnerOptions{
			Overtime:                 overtime,
			FirstRunFromEarliestFact: cfg.Payroll.FirstRunFromEarliestFact,
			Logger:                   logger,
		}),
	}
	return script.Exec(ctx, target, factory.ExecOptions{ContinueOnError: continueOnError, Logger: logger})
}

func openScript(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	return f, nil
}
