package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jia-app/dunningservice/internal/app"
	"github.com/jia-app/dunningservice/internal/config"
	"github.com/jia-app/dunningservice/internal/dunning/domain"
	"github.com/jia-app/dunningservice/internal/dunning/usecase"
)

// replay feeds billing failures missed by the webhook endpoint back through
// dunning. Tracker completion makes re-running a file safe.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	dryRun := flag.Bool("dry-run", false, "parse and print the rows without running dunning")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: replay-billing-failures [-config config.yaml] [-dry-run] <csv-file-path>")
	}
	csvFilePath := flag.Arg(0)

	failures, err := readFailuresFromCSV(csvFilePath)
	if err != nil {
		log.Fatalf("Failed to read billing failures from CSV: %v", err)
	}
	fmt.Printf("Loaded %d billing failures from CSV\n", len(failures))

	if *dryRun {
		for _, f := range failures {
			fmt.Printf("  %s %s cycle %d (%s)\n", f.Shop, f.ContractID, f.BillingCycleIndex, f.FailureReason)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	ctx := context.Background()
	defer application.Shutdown(ctx)

	summary := replay(ctx, application.Dunning(), failures, os.Stdout)
	fmt.Printf("Replayed %d failures: %d processed, %d already completed, %d failed\n",
		len(failures), summary.processed, summary.replayed, summary.failed)
	if summary.failed > 0 {
		os.Exit(1)
	}
}

type failureHandler interface {
	HandleFailure(ctx context.Context, ev usecase.FailureEvent) (usecase.Result, error)
}

type replaySummary struct {
	processed int
	replayed  int
	failed    int
}

func replay(ctx context.Context, handler failureHandler, failures []usecase.FailureEvent, out io.Writer) replaySummary {
	var summary replaySummary
	for _, f := range failures {
		res, err := handler.HandleFailure(ctx, f)
		if err != nil {
			summary.failed++
			fmt.Fprintf(out, "FAILED  %s %s cycle %d: %v\n", f.Shop, f.ContractID, f.BillingCycleIndex, err)
			continue
		}
		if res.Replayed {
			summary.replayed++
		} else {
			summary.processed++
		}
		fmt.Fprintf(out, "%-7s %s %s cycle %d -> %s\n", status(res), f.Shop, f.ContractID, f.BillingCycleIndex, res.Outcome)
	}
	return summary
}

func status(res usecase.Result) string {
	if res.Replayed {
		return "SKIPPED"
	}
	return "OK"
}

func readFailuresFromCSV(filePath string) ([]usecase.FailureEvent, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return parseFailures(file)
}

// parseFailures reads rows of shop, contract_id, billing_cycle_index, failure_reason
// after a header row. Invalid rows are reported and skipped.
func parseFailures(r io.Reader) ([]usecase.FailureEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// Skip header row
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var failures []usecase.FailureEvent
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		if len(record) < 4 {
			fmt.Printf("Warning: line %d has %d columns, expected 4\n", line, len(record))
			continue
		}

		cycleIndex, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			fmt.Printf("Warning: invalid billing cycle index on line %d: %s\n", line, record[2])
			continue
		}

		ev := usecase.FailureEvent{
			Shop:              strings.ToLower(strings.TrimSpace(record[0])),
			ContractID:        strings.TrimSpace(record[1]),
			BillingCycleIndex: cycleIndex,
			FailureReason:     strings.ToUpper(strings.TrimSpace(record[3])),
		}

		key := domain.TrackerKey{Shop: ev.Shop, ContractID: ev.ContractID, BillingCycleIndex: ev.BillingCycleIndex}
		if err := key.Validate(); err != nil {
			fmt.Printf("Warning: skipping line %d: %v\n", line, err)
			continue
		}

		failures = append(failures, ev)
	}

	return failures, nil
}
