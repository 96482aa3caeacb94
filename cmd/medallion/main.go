package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"medallion/internal/config"
	"medallion/internal/metrics"
	"medallion/internal/metrics/datadog"
	"medallion/internal/runner"
	"medallion/internal/warehouse"

	// register all backends with the warehouse factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "medallion/internal/warehouse/all"
)

// main is the entry point for the pipeline binary. It loads the run config,
// optionally initializes a metrics backend, and executes the selected stages.
func main() {
	var (
		cfgPath           string
		stageSelection    string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/dataco.json", "pipeline config JSON path")
	flag.StringVar(&stageSelection, "stage", "all", "stages to run (all, bronze, silver, gold, or fine-grained names, comma-separated)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	stages, err := runner.ExpandStages(stageSelection)
	if err != nil {
		fatalf("%v", err)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		// The Datadog backend buffers locally and submits periodically, then
		// one final time at shutdown (Close()), so long runs show up as a
		// time series rather than a single spike at the end.
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: p.Job,
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, p.Job, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("pipeline: job=%s storage=%s source=%s stages=%v",
			p.Job, p.Storage.Kind, p.Source.Kind, stages)
	}

	wh, err := warehouse.Open(ctx, warehouse.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer wh.Close()

	r := &runner.Runner{Store: wh, Logger: log.Default()}
	if err := r.Run(ctx, p, stages); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
