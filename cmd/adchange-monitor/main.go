package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/adchange-monitor/internal/app"
	"github.com/ignite/adchange-monitor/internal/config"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

const usage = `Usage: adchange-monitor [-config path] <command> [flags]

Commands:
  ingest            fetch, classify and record new change events
  measure           finalize records whose measurement window has elapsed
  run               ingest, measure and repair legacy rows in one locked cycle
  backfill -days N  ingest over the trailing N days (default 90)
  report            print the audit report
  serve             run the HTTP surface and the scheduled cycle worker
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Redact())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults plus
// environment overrides when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("config file not found, using defaults and environment", "path", path)
		return config.LoadFromEnv("")
	}
	return cfg, err
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	switch command {
	case "ingest", "measure", "run", "backfill", "report", "serve":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "ingest":
		res, err := a.Pipeline.RunIngestion(ctx)
		printJSON(res)
		return err
	case "measure":
		res, err := a.Pipeline.RunMeasurement(ctx)
		printJSON(res)
		return err
	case "run":
		res, err := a.Pipeline.RunFullCycle(ctx)
		printJSON(res)
		return err
	case "backfill":
		fs := flag.NewFlagSet("backfill", flag.ExitOnError)
		days := fs.Int("days", 90, "number of trailing days to ingest")
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err := a.Pipeline.RunBackfill(ctx, *days)
		printJSON(res)
		return err
	case "report":
		rows, err := a.Pipeline.Records(ctx)
		if err != nil {
			return err
		}
		out, err := a.Report.Render(rows, cfg.Monitoring.Window(), time.Now())
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	default:
		return serve(ctx, a)
	}
}

func serve(ctx context.Context, a *app.App) error {
	server := a.Server()

	go a.Worker().Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("failed to encode result", "error", err)
	}
}
