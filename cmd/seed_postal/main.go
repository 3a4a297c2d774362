package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/property-search/app/config"
	"github.com/property-search/app/models"
	"github.com/property-search/app/services"
	"github.com/property-search/internal/observability"
	"github.com/property-search/internal/search"
	"go.uber.org/zap"
)

// Seed postal index Meilisearch từ file CSV địa chỉ Royal Mail.
// Header bắt buộc có address_line1 và postcode; uprn, locality, town_or_city, county tùy chọn.
func main() {
	var (
		csvFile   = flag.String("file", "", "Path to postal address CSV")
		configDir = flag.String("config", "./config", "Directory containing app.yaml")
		rebuild   = flag.Bool("rebuild-indexes", true, "Configure index settings before seeding")
		dryRun    = flag.Bool("dry-run", false, "Validate rows without writing to Meilisearch")
	)
	flag.Parse()

	if *csvFile == "" {
		fmt.Fprintln(os.Stderr, "usage: seed_postal -file addresses.csv [-config ./config] [-dry-run]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		panic(err)
	}
	logger, err := observability.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	f, err := os.Open(*csvFile)
	if err != nil {
		logger.Fatal("Cannot open CSV", zap.Error(err))
	}
	defer f.Close()

	addresses, err := readAddresses(f)
	if err != nil {
		logger.Fatal("Cannot parse CSV", zap.Error(err))
	}
	logger.Info("Đã đọc địa chỉ", zap.Int("rows", len(addresses)))

	index := search.NewPostalIndex(search.SearchConfig{
		Host:          cfg.Meilisearch.URL,
		APIKey:        cfg.Meilisearch.MasterKey,
		IndexName:     cfg.Meilisearch.Index,
		Timeout:       cfg.Meilisearch.Timeout,
		MaxCandidates: cfg.Meilisearch.MaxCandidates,
	}, logger)
	admin := services.NewAdminService(index, nil, logger)

	if *dryRun {
		validation, _ := admin.ValidateSeedData(addresses)
		logger.Info("Dry run",
			zap.Bool("passed", validation.Passed),
			zap.Int("accepted", validation.Accepted),
			zap.Strings("warnings", validation.Warnings))
		return
	}

	healthCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = index.Healthy(healthCtx)
	cancel()
	if err != nil {
		logger.Fatal("Không thể kết nối Meilisearch", zap.Error(err))
	}

	result, err := admin.SeedAddresses(context.Background(), addresses, *rebuild)
	if err != nil {
		logger.Fatal("Seed failed", zap.Error(err))
	}
	logger.Info("Seed hoàn thành",
		zap.Int("seeded", result.AddressesSeeded),
		zap.Int("skipped", result.Skipped),
		zap.Int64("duration_ms", result.ProcessingTimeMs))
}

// readAddresses đọc CSV có header, thứ tự cột tùy ý
func readAddresses(r io.Reader) ([]models.AddressCandidate, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("lỗi đọc header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"address_line1", "postcode"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("thiếu cột %q", required)
		}
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var addresses []models.AddressCandidate
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, models.AddressCandidate{
			AddressLine1: get(row, "address_line1"),
			Locality:     get(row, "locality"),
			TownOrCity:   get(row, "town_or_city"),
			County:       get(row, "county"),
			Postcode:     get(row, "postcode"),
			UPRN:         get(row, "uprn"),
		})
	}
	return addresses, nil
}
