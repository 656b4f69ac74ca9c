package main

import (
	"fmt"
	"time"

	"github.com/yair/eventfeed/pkg/aggregator"
	"github.com/yair/eventfeed/pkg/config"
	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/integrations"
	"github.com/yair/eventfeed/pkg/logger"
	"github.com/yair/eventfeed/pkg/metrics"
	"github.com/yair/eventfeed/pkg/normalizer"
)

type loadFunc func() (*config.Config, error)

// feed bundles what both commands need to drive the coordinator.
type feed struct {
	coordinator *aggregator.Coordinator
	location    *time.Location
}

func newLogger(cfg *config.Config, outputPaths ...string) (logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: outputPaths,
	})
}

func buildFeed(cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*feed, error) {
	loc, err := cfg.Feed.LoadLocation()
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*integrations.SourceClient, 2)
	ceilings := make(map[string]int, 2)
	for _, name := range []string{domain.SourceMain, domain.SourceExtension} {
		src, err := cfg.Source(name)
		if err != nil {
			return nil, err
		}
		client, err := integrations.NewSourceClient(integrations.SourceConfig{
			Name:              name,
			BaseURL:           src.BaseURL,
			LookaheadDays:     cfg.Feed.LookaheadDays,
			PageSize:          src.PageSize,
			PageCeiling:       src.PageCeiling,
			RequestsPerSecond: src.RequestsPerSecond,
			Timeout:           time.Duration(src.Timeout) * time.Second,
			UserAgent:         src.UserAgent,
		}, log, m)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", name, err)
		}
		clients[name] = client
		ceilings[name] = src.PageCeiling
	}

	norm := normalizer.New(
		normalizer.WithLocation(loc),
		normalizer.WithMaxDescriptionLength(cfg.Feed.DescriptionMaxLength),
	)

	coord, err := aggregator.New(aggregator.Config{
		TTL:                  cfg.Feed.TTL(),
		SampleSize:           cfg.Feed.SampleSize,
		InitialPages:         cfg.Feed.InitialPages,
		CategoryAttempts:     cfg.Feed.CategoryAttempts,
		CategoryTarget:       cfg.Feed.CategoryTarget,
		AssumedEventsPerPage: cfg.Feed.AssumedEventsPerPage,
		Ceilings:             ceilings,
	},
		clients[domain.SourceMain],
		clients[domain.SourceExtension],
		aggregator.WithLogger(log),
		aggregator.WithMetrics(m),
		aggregator.WithNormalizer(norm),
	)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	return &feed{coordinator: coord, location: loc}, nil
}
