package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/property-search/app/bootstrap"
	"github.com/property-search/app/config"
	"github.com/property-search/app/models"
	"github.com/property-search/app/requests"
	"github.com/property-search/app/services"
	"github.com/property-search/internal/observability"
	"go.uber.org/zap"
)

// Worker chạy một bulk search offline: đọc request JSON, chờ job kết thúc, ghi CSV
func main() {
	var (
		requestFile = flag.String("request", "", "Path to bulk search request JSON")
		outputFile  = flag.String("out", "", "Path to CSV output (default stdout)")
		configDir   = flag.String("config", "./config", "Directory containing app.yaml")
		poll        = flag.Duration("poll", 500*time.Millisecond, "Status poll interval")
	)
	flag.Parse()

	if *requestFile == "" {
		fmt.Fprintln(os.Stderr, "usage: worker -request request.json [-out results.csv] [-config ./config]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		panic(err)
	}
	// worker chạy một job trong process, không cần job store dùng chung
	cfg.Store.Backend = bootstrap.StoreMemory

	logger, err := observability.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	req, err := readRequest(*requestFile)
	if err != nil {
		logger.Fatal("Invalid request file", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close(context.Background())

	engine := components.NewEngine()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = engine.Shutdown(shutdownCtx)
	}()

	out := io.Writer(os.Stdout)
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			logger.Fatal("Cannot create output file", zap.Error(err))
		}
		defer f.Close()
		out = f
	}

	job, err := runJob(ctx, engine, req, out, *poll, logger)
	if err != nil {
		logger.Error("Bulk search failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Bulk search finished",
		zap.String("request_id", job.RequestID),
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.ProcessedRecords),
		zap.Int("errors", len(job.Errors)))
	if job.Status != models.JobStatusCompleted {
		os.Exit(1)
	}
}

func readRequest(path string) (models.BulkSearchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.BulkSearchRequest{}, err
	}
	var body requests.BulkSearchRequest
	if err := json.Unmarshal(data, &body); err != nil {
		return models.BulkSearchRequest{}, fmt.Errorf("lỗi parse request: %w", err)
	}
	return body.ToModel()
}

// runJob submit job, poll tới khi kết thúc rồi ghi CSV nếu completed.
// ctx bị hủy thì job được cancel và chờ settle.
func runJob(ctx context.Context, engine *services.BulkSearchService, req models.BulkSearchRequest, out io.Writer, poll time.Duration, logger *zap.Logger) (*models.BulkSearchJob, error) {
	job, err := engine.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("Bulk search submitted", zap.String("request_id", job.RequestID), zap.Int("total_records", job.TotalRecords))

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	cancelled := false
	for !job.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				logger.Warn("Interrupted, cancelling job", zap.String("request_id", job.RequestID))
				if err := engine.Cancel(context.WithoutCancel(ctx), job.RequestID); err != nil {
					logger.Warn("Cancel failed", zap.Error(err))
				}
			}
			<-ticker.C
		case <-ticker.C:
		}

		job, err = engine.GetStatus(context.WithoutCancel(ctx), job.RequestID)
		if err != nil {
			return nil, err
		}
		logger.Debug("Bulk search progress",
			zap.String("request_id", job.RequestID),
			zap.Int("processed", job.ProcessedRecords),
			zap.Int("total", job.TotalRecords))
	}

	if job.Status == models.JobStatusCompleted {
		if err := services.WriteCSV(out, job.Results); err != nil {
			return job, err
		}
	}
	return job, nil
}
