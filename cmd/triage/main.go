package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arlberg/triage"
	"github.com/arlberg/triage/client"
	"github.com/arlberg/triage/internal/hook"
)

func main() {
	configPath := flag.String("c", "", "path to the yaml config file")
	flag.Parse()

	log := slog.Default()

	cfg := triage.DefaultConfig()

	if *configPath != "" {
		var err error

		cfg, err = triage.LoadConfig(*configPath)
		if err != nil {
			log.Error(err.Error())
			os.Exit(-1)
		}
	}

	if cfg.ExecutorURL == "" {
		log.Error("no executor url configured")
		os.Exit(-1)
	}

	executor := client.New(cfg.ExecutorURL, &http.Client{Timeout: cfg.CaseTimeout})

	opts := []triage.Option{
		triage.WithConfig(cfg),
		triage.WithLogger(log),
		triage.WithMiddleware(triage.TimingMiddleware(log)),
	}

	if len(cfg.Elastic.Addresses) > 0 {
		reportIndex, err := hook.NewReportIndexHook(cfg.Elastic.Addresses, cfg.Elastic.Index, log)
		if err != nil {
			log.Error(err.Error())
			os.Exit(-1)
		}

		opts = append(opts, triage.WithHook(reportIndex))
	}

	if cfg.Slack.Token != "" {
		opts = append(opts, triage.WithHook(hook.NewAnomalyNotifier(cfg.Slack.ChannelID, cfg.Slack.Token, log)))
	}

	s, err := triage.New(executor, opts...)
	if err != nil {
		log.Error(err.Error())
		os.Exit(-1)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.Shutdown(ctx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	if err := s.Run(); err != nil {
		log.Error(err.Error())
		os.Exit(-1)
	}
}
