package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/shawcc/trumpsword/internal/classify"
	"github.com/shawcc/trumpsword/internal/collector"
	"github.com/shawcc/trumpsword/internal/config"
	"github.com/shawcc/trumpsword/internal/ingest"
	"github.com/shawcc/trumpsword/internal/meegle"
	"github.com/shawcc/trumpsword/internal/metrics"
	"github.com/shawcc/trumpsword/internal/notify"
	"github.com/shawcc/trumpsword/internal/source"
	"github.com/shawcc/trumpsword/internal/store"
	"github.com/shawcc/trumpsword/internal/workflow"
)

// App is the wired pipeline shared by every command.
type App struct {
	Config    config.Config
	Store     *store.Store
	Metrics   *metrics.Metrics
	Publisher notify.Publisher
	Tracker   *meegle.Adapter
	Engine    *workflow.Engine
	Ingestor  *ingest.Ingestor
	Collector *collector.Collector
}

// openApp loads configuration and builds the pipeline. Templates are
// ensured before it returns. Callers must Close the App.
func openApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.Database.Path = opts.DB
	}
	logger := slog.Default()

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open database", err)
	}

	app := &App{Config: cfg, Store: st, Publisher: notify.Nop{}}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(reg)

	if cfg.NATS.URL != "" {
		pub, err := notify.Connect(cfg.NATS.URL, logger)
		if err != nil {
			// Notifications are optional; the pipeline runs without them.
			logger.Warn("notifications disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			app.Publisher = pub
		}
	}

	app.Tracker = meegle.New(meegle.Config{
		BaseURL:     cfg.Meegle.BaseURL,
		TokenURL:    cfg.Meegle.TokenURL,
		Credentials: meegle.Credentials{AppID: cfg.Meegle.AppID, AppSecret: cfg.Meegle.AppSecret},
		ProjectKey:  cfg.Meegle.ProjectKey,
		TypeMap:     cfg.Meegle.TypeMap,
		Transitions: cfg.Meegle.Transitions,
		TokenMargin: cfg.Meegle.TokenMargin,
	}, st, meegle.WithLogger(logger))
	if app.Tracker.Mock() {
		logger.Info("meegle credentials not set, using mock sync")
	}

	app.Engine = workflow.New(st, app.Tracker, workflow.WithLogger(logger))
	if _, err := app.Engine.EnsureTemplates(ctx); err != nil {
		app.Close()
		return nil, WrapExitError(ExitFailure, "failed to ensure templates", err)
	}

	app.Ingestor = ingest.New(st, newClassifier(cfg, logger), app.Engine,
		ingest.WithLogger(logger),
		ingest.WithMetrics(app.Metrics),
		ingest.WithPublisher(app.Publisher))

	adapters := opts.Sources
	if adapters == nil {
		adapters = buildSources(cfg, logger)
	}
	app.Collector = collector.New(st, app.Ingestor, adapters,
		collector.WithRetryBatch(cfg.Collector.RetryBatch),
		collector.WithLogger(logger),
		collector.WithMetrics(app.Metrics))

	return app, nil
}

// Close releases the store and the notification connection.
func (a *App) Close() error {
	return errors.Join(a.Publisher.Close(), a.Store.Close())
}

func newClassifier(cfg config.Config, logger *slog.Logger) *classify.Classifier {
	opts := []classify.Option{classify.WithLogger(logger)}
	if cfg.LLM.APIKey != "" {
		copts := []classify.CompleterOption{
			classify.WithCompleterLogger(logger),
			classify.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
		}
		if cfg.LLM.BaseURL != "" {
			copts = append(copts, classify.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.Model != "" {
			copts = append(copts, classify.WithModel(cfg.LLM.Model))
		}
		opts = append(opts, classify.WithCompleter(classify.NewOpenAICompleter(cfg.LLM.APIKey, copts...)))
	} else {
		logger.Info("no completion service configured, classifying by rules")
	}
	return classify.New(opts...)
}

func buildSources(cfg config.Config, logger *slog.Logger) []source.Adapter {
	sc := cfg.Sources
	fopts := []source.FetcherOption{source.WithFetchLogger(logger)}
	if sc.UserAgent != "" {
		fopts = append(fopts, source.WithUserAgent(sc.UserAgent))
	}
	if sc.MaxRetries > 0 {
		fopts = append(fopts, source.WithMaxRetries(uint64(sc.MaxRetries)))
	}
	f := source.NewFetcher(fopts...)
	policy := source.CrawlPolicy{MaxPages: sc.MaxPages, PageDelay: sc.PageDelay}

	var out []source.Adapter
	if sc.Congress.Enabled {
		out = append(out, source.NewCongress(sc.Congress.FeedURL, f))
	}
	if sc.WhiteHouse.Enabled {
		out = append(out, source.NewWhiteHouse(sc.WhiteHouse.URL, f, policy))
	}
	if sc.TruthSocial.Enabled {
		out = append(out, source.NewTruthSocial(sc.TruthSocial.URL, sc.TruthSocial.Account, f, policy))
	}
	if sc.Telegram.Enabled {
		out = append(out, source.NewTelegram(sc.Telegram.URL, sc.Telegram.Channel, f, policy))
	}
	return out
}
