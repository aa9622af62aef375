package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docmill/docmill/convert"
	"github.com/docmill/docmill/convstore"
	"github.com/docmill/docmill/idgen"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	cfg.Pipeline.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "convert":
		err = cmdConvert(ctx, cfg, os.Args[2:])
	case "enqueue":
		err = cmdEnqueue(ctx, cfg, os.Args[2:])
	case "worker":
		err = cmdWorker(ctx, cfg)
	case "mcp":
		err = cmdMCP(ctx, cfg)
	case "status":
		err = cmdStatus(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `docmill — document conversion service

usage:
  docmill convert <file>...     convert files, write .md next to each input
  docmill enqueue <file>...     queue files for background conversion
  docmill worker                process queued conversions until interrupted
  docmill mcp                   serve conversion tools over MCP stdio
  docmill status                print conversion counts by status

configuration is read from DOCMILL_CONFIG (YAML), defaults apply otherwise.
`)
}

func loadConfig() *convert.Config {
	path := os.Getenv("DOCMILL_CONFIG")
	if path == "" {
		return convert.DefaultConfig()
	}
	cfg, err := convert.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func cmdConvert(ctx context.Context, cfg *convert.Config, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("convert requires at least one file")
	}

	conv, err := convert.New(cfg.Pipeline)
	if err != nil {
		return err
	}

	db, err := convstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := convstore.NewStore(db)
	metrics := convstore.NewMetrics(db, convstore.MetricsOptions{Logger: slog.Default()})
	defer metrics.Close()

	var sources []convert.Source
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, convert.Source{Name: filepath.Base(path), Data: data})
	}

	start := time.Now()
	results, err := conv.ConvertAll(ctx, sources)
	if err != nil {
		return err
	}

	failed := 0
	for i, res := range results {
		id := idgen.Prefixed("cnv_", idgen.UUIDv7())()
		if err := store.Save(ctx, id, res, time.Since(start)); err != nil {
			slog.Warn("record not saved", "id", id, "error", err)
		}
		metrics.RecordConversion(string(res.Input.Format), string(res.Status), len(res.Pages), time.Since(start))
		if !res.Status.Usable() {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s\n", paths[i], res.Status)
			continue
		}
		out := outputPath(cfg.OutputDir, paths[i])
		if err := os.WriteFile(out, []byte(res.Output.Markdown()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "%s: %s → %s\n", paths[i], res.Status, out)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

func outputPath(dir, in string) string {
	base := filepath.Base(in)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+".md")
}

func cmdEnqueue(ctx context.Context, cfg *convert.Config, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("enqueue requires at least one file")
	}

	db, err := convstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	queue := convstore.NewQueue(db, convstore.QueueOptions{})

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		id := idgen.Prefixed("job_", idgen.UUIDv7())()
		if err := queue.Enqueue(ctx, id, []byte(abs)); err != nil {
			return fmt.Errorf("enqueue %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "queued %s as %s\n", path, id)
	}
	return nil
}

func cmdWorker(ctx context.Context, cfg *convert.Config) error {
	conv, err := convert.New(cfg.Pipeline)
	if err != nil {
		return err
	}

	db, err := convstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := convstore.NewStore(db)
	queue := convstore.NewQueue(db, convstore.QueueOptions{})
	metrics := convstore.NewMetrics(db, convstore.MetricsOptions{Logger: slog.Default()})
	defer metrics.Close()

	opts := cfg.Pipeline.WithDefaults()
	handler := func(ctx context.Context, job *convstore.Job) error {
		path := string(job.Payload)
		start := time.Now()
		res, err := conv.ConvertFile(ctx, path)
		if err != nil {
			return err
		}
		took := time.Since(start)
		if err := store.Save(ctx, job.ID, res, took); err != nil {
			return err
		}
		metrics.RecordConversion(string(res.Input.Format), string(res.Status), len(res.Pages), took)
		if !res.Status.Usable() {
			// Recorded as FAILURE; do not redeliver what cannot parse.
			return nil
		}
		out := outputPath(cfg.OutputDir, path)
		return os.WriteFile(out, []byte(res.Output.Markdown()), 0o644)
	}

	// Blocks until the signal context is cancelled.
	queue.RunBatch(ctx, opts.DocBatchSize, opts.DocBatchConcurrency, handler)
	return nil
}

func cmdMCP(ctx context.Context, cfg *convert.Config) error {
	conv, err := convert.New(cfg.Pipeline)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "docmill",
		Version: "1.0.0",
	}, nil)
	conv.RegisterMCP(srv)

	slog.Info("MCP stdio server starting")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func cmdStatus(ctx context.Context, cfg *convert.Config) error {
	db, err := convstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := convstore.NewStore(db).CountByStatus(ctx)
	if err != nil {
		return err
	}
	queued, err := convstore.NewQueue(db, convstore.QueueOptions{}).Len(ctx)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"conversions": counts,
		"queued":      queued,
	})
}
