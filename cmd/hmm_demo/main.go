package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LucaChot/ghmm/src/config"
	"github.com/LucaChot/ghmm/src/hmm"
	"github.com/LucaChot/ghmm/src/metrics"
	"github.com/LucaChot/ghmm/src/profiler"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	log "github.com/sirupsen/logrus"
)

func init() {
	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flag.CommandLine)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.LogLevel)

	ps, err := config.LoadParameters(cfg.ParamsFile)
	if err != nil {
		log.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	rec := metrics.New()
	if err := rec.Register(reg); err != nil {
		log.Fatal(err)
	}
	if cfg.DebugAddr != "" {
		if _, err := profiler.Start(ctx, cfg.DebugAddr, reg); err != nil {
			log.Fatalf("Failed to start debug server: %v", err)
		}
	}

	model, err := hmm.New(cfg.States, cfg.Dimensions,
		hmm.WithWorkers(cfg.Workers),
		hmm.WithMetrics(rec))
	if err != nil {
		log.Fatal(err)
	}
	if err := model.SetParameters(ps.Pi, ps.A, ps.Mu, ps.Sigma); err != nil {
		log.Fatalf("Failed to set parameters: %v", err)
	}

	sample, err := model.Sample(cfg.Observations, cfg.Time, cfg.Seed)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("states: %v\n", sample.States)
	fmt.Printf("emissions: %v\n", sample.Emissions)

	res, err := model.Fit(ctx, sample.Emissions,
		hmm.WithSeed(cfg.Seed),
		hmm.WithMaxIterations(cfg.MaxIterations),
		hmm.WithTolerance(cfg.Tolerance))
	if err != nil {
		log.Fatalf("Fit failed: %v", err)
	}
	log.WithFields(log.Fields{
		"run":        res.RunID,
		"converged":  res.Converged,
		"iterations": res.Iterations,
		"aic":        res.AIC(),
	}).Info("fitted model")

	paths, err := model.Inference(ctx, sample.Emissions)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("viterbi: %v\n", paths)

	ll, err := model.LogLikelihood(ctx, sample.Emissions)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("log-likelihood: %v\n", ll)

	fitted, err := model.GetParameters()
	if err != nil {
		log.Fatal(err)
	}
	if err := config.WriteParameters(os.Stdout, fitted); err != nil {
		log.Fatal(err)
	}
	if cfg.OutputFile != "" {
		if err := config.SaveParameters(cfg.OutputFile, fitted); err != nil {
			log.Fatal(err)
		}
	}

	if cfg.MetricsFile != "" {
		if err := writeMetrics(cfg.MetricsFile, reg); err != nil {
			log.Fatal(err)
		}
	}
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := metrics.WriteText(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
