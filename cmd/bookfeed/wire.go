package main

import (
	"context"

	"github.com/drallgood/bookfeed/internal/api/nyt"
	"github.com/drallgood/bookfeed/internal/api/openlibrary"
	"github.com/drallgood/bookfeed/internal/api/reddit"
	"github.com/drallgood/bookfeed/internal/api/telegram"
	"github.com/drallgood/bookfeed/internal/bot"
	"github.com/drallgood/bookfeed/internal/cache"
	"github.com/drallgood/bookfeed/internal/config"
	"github.com/drallgood/bookfeed/internal/delivery"
	"github.com/drallgood/bookfeed/internal/feed"
	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/models"
)

// sender is the union of the Telegram endpoints the jobs use
type sender interface {
	delivery.MediaSender
	bot.MessageSender
}

// buildService wires collaborators from configuration
func buildService(cfg *config.Config, log *logger.Logger) (*bot.Service, error) {
	var out sender
	if cfg.App.DryRun {
		out = telegram.NewDryRunSender(log)
	} else {
		out = telegram.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.Timeout, log)
	}
	fetcher := telegram.NewFetcher(0, cfg.Reddit.UserAgent)

	policy, err := delivery.ParsePolicy(cfg.Delivery.FailurePolicy)
	if err != nil {
		return nil, err
	}
	pipeline := func(job string) (*delivery.Pipeline, error) {
		mode, err := delivery.ParseMode(cfg.ModeFor(job))
		if err != nil {
			return nil, err
		}
		return delivery.NewPipeline(out, fetcher, delivery.Config{
			ChatID:    cfg.Telegram.ChatID,
			Mode:      mode,
			BatchSize: cfg.Delivery.BatchSize,
			PaceDelay: cfg.Delivery.PaceDelay,
			Policy:    policy,
		}, log)
	}
	bestsellerDelivery, err := pipeline(config.JobBestsellers)
	if err != nil {
		return nil, err
	}
	threadDelivery, err := pipeline(config.JobThread)
	if err != nil {
		return nil, err
	}

	olOpts := []openlibrary.Option{openlibrary.WithRateLimit(cfg.OpenLibrary.RateLimit)}
	if cfg.OpenLibrary.BaseURL != "" {
		olOpts = append(olOpts, openlibrary.WithBaseURL(cfg.OpenLibrary.BaseURL))
	}
	catalog := feed.CachedEnricher(
		openlibrary.NewClient(log, olOpts...),
		cache.NewMemoryCache[string, models.Enrichment](log),
	)

	deps := bot.Deps{
		Thread: reddit.NewClient(reddit.Config{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			UserAgent:    cfg.Reddit.UserAgent,
			BaseURL:      cfg.Reddit.BaseURL,
		}, log),
		Normalizer:         feed.NewNormalizer(catalog, cfg.Delivery.MaxThreadBooks, log),
		Messages:           out,
		BestsellerDelivery: bestsellerDelivery,
		ThreadDelivery:     threadDelivery,
	}
	if cfg.NYT.APIKey != "" {
		deps.Bestsellers = nyt.NewClient(cfg.NYT.BaseURL, cfg.NYT.APIKey, log)
	}

	return bot.NewService(deps, bot.Options{
		ChatID:       cfg.Telegram.ChatID,
		Lists:        cfg.NYT.Lists,
		Subreddit:    cfg.Reddit.Subreddit,
		ThreadTitle:  cfg.Reddit.ThreadTitle,
		ThreadID:     cfg.Reddit.ThreadID,
		CommentLimit: cfg.Reddit.CommentLimit,
	}, log), nil
}

// jobFunc validates and runs a job against a freshly wired service
func jobFunc(cfg *config.Config, log *logger.Logger) func(ctx context.Context, job string) error {
	return func(ctx context.Context, job string) error {
		if err := cfg.ValidateJob(job); err != nil {
			return err
		}
		svc, err := buildService(cfg, log)
		if err != nil {
			return err
		}
		_, err = svc.Run(ctx, job)
		return err
	}
}
