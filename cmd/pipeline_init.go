package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/advisor"
	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/progress"
	"github.com/sells-group/valuation-cli/internal/resilience"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/valuation"
	anthropicpkg "github.com/sells-group/valuation-cli/pkg/anthropic"
	"github.com/sells-group/valuation-cli/pkg/listings"
	"github.com/sells-group/valuation-cli/pkg/pricing"
)

// valuationEnv holds the store, services and orchestrator needed by the
// valuate and serve commands.
type valuationEnv struct {
	Store        store.Store
	Orchestrator *valuation.Orchestrator
	Feedback     *valuation.FeedbackCache
	nats         *progress.NATSPublisher
}

// Close releases resources held by the environment.
func (ve *valuationEnv) Close() {
	if ve.nats != nil {
		ve.nats.Close()
	}
	if ve.Store != nil {
		_ = ve.Store.Close()
	}
}

// envOptions tune initValuation.
type envOptions struct {
	Offline   bool
	Workers   int
	Publisher progress.Publisher
}

// initValuation opens the store, builds every stage service and wires the
// orchestrator. Callers should defer env.Close().
func initValuation(ctx context.Context, opts envOptions) (*valuationEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &valuationEnv{Store: st}

	svc, err := buildServices(st, opts.Offline)
	if err != nil {
		env.Close()
		return nil, err
	}

	policies := stagePolicies(cfg.Stages)
	enricher := valuation.NewEnricher(svc, policies, time.Duration(cfg.Batch.StagePacingMs)*time.Millisecond)
	env.Feedback = valuation.NewFeedbackCache(st, policies.Feedback, cfg.Batch.FeedbackLimit)

	publishers := progress.Multi{opts.Publisher}
	if cfg.NATS.URL != "" {
		np, err := progress.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			zap.L().Warn("nats unavailable, progress will not be published there", zap.Error(err))
		} else {
			env.nats = np
			publishers = append(publishers, np)
			zap.L().Info("publishing progress to nats", zap.String("subject", cfg.NATS.Subject))
		}
	}

	workers := cfg.Batch.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	env.Orchestrator = valuation.NewOrchestrator(enricher, env.Feedback, valuation.Options{
		Workers:   workers,
		ItemDelay: time.Duration(cfg.Batch.ItemDelayMs) * time.Millisecond,
		Publisher: publishers,
	})
	return env, nil
}

// buildServices returns the live API-backed services, or the deterministic
// stand-ins when offline. Internal comparables always come from the store.
func buildServices(st store.Store, offline bool) (valuation.Services, error) {
	if offline {
		bl := valuation.StubBaseline{}
		zap.L().Info("offline mode: using stub pricing, listings and synthesis")
		return valuation.Services{
			Baseline:  bl,
			Market:    valuation.StubMarket{Baseline: bl},
			Internal:  st,
			Synthesis: valuation.StubSynthesis{},
			Saver:     st,
		}, nil
	}

	if err := cfg.Validate("valuate"); err != nil {
		return valuation.Services{}, err
	}

	pricingClient := pricing.NewClient(cfg.Pricing.Key,
		pricing.WithBaseURL(cfg.Pricing.BaseURL),
		pricing.WithRateLimit(cfg.Pricing.RateLimit),
	)
	listingsClient := listings.NewClient(cfg.Listings.Key,
		listings.WithBaseURL(cfg.Listings.BaseURL),
		listings.WithRateLimit(cfg.Listings.RateLimit),
	)
	adv, err := advisor.New(anthropicpkg.NewClient(cfg.Anthropic.Key), advisor.Config{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Temperature: cfg.Anthropic.Temperature,
	})
	if err != nil {
		return valuation.Services{}, eris.Wrap(err, "init advisor")
	}

	return valuation.Services{
		Baseline:  valuation.PricingBaseline{Client: pricingClient},
		Market:    valuation.ListingsMarket{Client: listingsClient, YearWindow: cfg.Listings.YearWindow, Limit: cfg.Listings.Limit},
		Internal:  st,
		Synthesis: adv,
		Saver:     st,
	}, nil
}

// stagePolicies converts the stage config to executor policies. Unset
// values keep the built-in budgets.
func stagePolicies(c config.StagesConfig) valuation.Policies {
	def := valuation.DefaultPolicies()
	conv := func(name string, sc config.StageConfig, d resilience.Policy) resilience.Policy {
		return resilience.PolicyFromConfig(name, sc.TimeoutSecs, sc.Retries, sc.DelayMs, d)
	}
	return valuation.Policies{
		Baseline:  conv(def.Baseline.Name, c.Baseline, def.Baseline),
		Market:    conv(def.Market.Name, c.Market, def.Market),
		Internal:  conv(def.Internal.Name, c.Internal, def.Internal),
		Synthesis: conv(def.Synthesis.Name, c.Synthesis, def.Synthesis),
		Persist:   conv(def.Persist.Name, c.Persist, def.Persist),
		Feedback:  conv(def.Feedback.Name, c.Feedback, def.Feedback),
	}
}
