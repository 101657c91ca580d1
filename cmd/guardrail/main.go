package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ecomguard/telemetry-guardrail/internal/archive"
	"github.com/ecomguard/telemetry-guardrail/internal/config"
	"github.com/ecomguard/telemetry-guardrail/internal/generator"
	"github.com/ecomguard/telemetry-guardrail/internal/httpapi"
	"github.com/ecomguard/telemetry-guardrail/internal/pipeline"
)

const (
	appName = "telemetry-guardrail"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time telemetry data-quality and anomaly guardrail for e-commerce funnels",
		Version: version,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDemoCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingest/alerts/metrics HTTP server",
		RunE:  runServe,
	}
	cmd.Flags().String("config", "", "path to a YAML tunables file (defaults used if omitted)")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().String("archive", "", "path to the violation archive CSV (disabled if omitted)")
	cmd.Flags().Int("warm-records", 200, "synthetic records per SKU used to warm drift/anomaly before serving")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	archivePath, _ := cmd.Flags().GetString("archive")
	warmRecords, _ := cmd.Flags().GetInt("warm-records")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	p := pipeline.New(cfg)

	if warmRecords > 0 {
		gen := generator.New(generator.DefaultConfig())
		if err := p.WarmBaseline(gen.Batch(warmRecords), cfg.AnomalyForestConfig()); err != nil {
			log.Warn().Err(err).Msg("failed to warm baseline, serving with a cold model")
		} else {
			log.Info().Int("records", warmRecords).Msg("warmed drift baseline and anomaly model")
		}
	}

	var arc *archive.Writer
	if archivePath != "" {
		arc, err = archive.Open(archivePath)
		if err != nil {
			return fmt.Errorf("open violation archive: %w", err)
		}
		defer arc.Close()
	}

	stopSampler := p.Metrics.StartThroughputSampler(5 * time.Second)
	defer stopSampler()

	srv := httpapi.NewServer(httpapi.Config{
		Host:         host,
		Port:         port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, p)
	srv.SetArchive(arc)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigCh:
		log.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a synthetic telemetry stream through the pipeline and print alerts as they fire",
		RunE:  runDemo,
	}
	cmd.Flags().Duration("interval", 200*time.Millisecond, "time between synthetic records")
	cmd.Flags().Duration("duration", 30*time.Second, "how long to run the demo")
	cmd.Flags().Float64("anomaly-rate", 0.05, "fraction of synthetic records perturbed into outliers")
	cmd.Flags().Int64("seed", 1, "random seed for the synthetic feed")
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	duration, _ := cmd.Flags().GetDuration("duration")
	anomalyRate, _ := cmd.Flags().GetFloat64("anomaly-rate")
	seed, _ := cmd.Flags().GetInt64("seed")

	cfg := config.NewDefaultConfig()
	p := pipeline.New(cfg)

	genCfg := generator.DefaultConfig()
	genCfg.AnomalyRate = anomalyRate
	genCfg.Seed = seed
	gen := generator.New(genCfg)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	stream := gen.Stream(ctx, interval)
	var processed int
	for rec := range stream {
		result := p.Ingest(ctx, rec)
		processed++
		if result.AlertsCreated > 0 {
			fmt.Printf("[%s] sku=%s alerts=%d message=%q\n",
				rec.Timestamp.Format(time.RFC3339), rec.SKU, result.AlertsCreated, result.Message)
		}
	}

	fmt.Printf("demo complete: processed %d records\n", processed)
	return nil
}
