// Command builditd is the coordinator: it serves the HTTP surface workers,
// the webhook relay, and operators talk to, and runs the background
// recycler sweep that reclaims stale job assignments.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/google/go-github/v27/github"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/buildit-project/buildit/internal/config"
	"github.com/buildit-project/buildit/internal/httpapi"
	"github.com/buildit-project/buildit/internal/ingest"
	"github.com/buildit-project/buildit/internal/logfanout"
	"github.com/buildit-project/buildit/internal/logging"
	"github.com/buildit-project/buildit/internal/metrics"
	"github.com/buildit-project/buildit/internal/pipeline"
	"github.com/buildit-project/buildit/internal/propagate"
	"github.com/buildit-project/buildit/internal/recycler"
	"github.com/buildit-project/buildit/internal/registry"
	"github.com/buildit-project/buildit/internal/scheduler"
	"github.com/buildit-project/buildit/internal/store"
	"github.com/buildit-project/buildit/internal/webhook"
	"github.com/distr1/distri"
)

func main() {
	cfg := config.FromEnv()
	configFile := flag.String("config", "", "optional YAML config overlay (see internal/config.ApplyYAMLFile)")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *configFile != "" {
		if err := cfg.ApplyYAMLFile(*configFile); err != nil {
			log.Fatalf("loading config overlay: %v", err)
		}
	}

	zlog := logging.Must(cfg.Dev)
	defer zlog.Sync()

	if cfg.DatabaseURL == "" {
		zlog.Fatal("BUILDIT_DATABASE_URL (or -database_url) must be set")
	}

	ctx, canc := distri.InterruptibleContext()
	defer canc()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	var ghClient *github.Client
	if cfg.GitHubAccessToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubAccessToken})
		ghClient = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		ghClient = github.NewClient(nil)
	}

	var chat propagate.ChatNotifier
	if cfg.ChatToken != "" {
		chat = propagate.NewSlackNotifier(slack.New(cfg.ChatToken))
	}

	m := metrics.New()

	tree := pipeline.NewGitTree(cfg.TreePath)
	factory := &pipeline.Factory{Store: db, Tree: tree, Metrics: m}

	propagator := propagate.NewPropagator(chat, propagate.NewGitHubClient(ghClient), zlog, cfg.Owner, cfg.Repo, cfg.BotLogin)

	api := &httpapi.API{
		Store:     db,
		Pipelines: factory,
		Scheduler: &scheduler.Scheduler{Store: db},
		Registry:  &registry.Registry{Store: db, LiveWindow: config.LiveWindow},
		Ingest:    &ingest.Ingest{Store: db, Propagator: propagator, Metrics: m},
		Hub:       logfanout.NewHub(),
		PRs:       httpapi.NewGitHubPRResolver(ghClient, cfg.Owner, cfg.Repo),
		Webhook: &webhook.Handler{
			GitHub:    webhook.NewGitHubClient(ghClient),
			Pipelines: factory,
			Log:       zlog,
			Owner:     cfg.Owner,
			Repo:      cfg.Repo,
			Org:       cfg.Owner,
			BotLogin:  "@" + cfg.BotLogin,
		},
		Metrics:         m,
		Log:             zlog,
		WorkerSecret:    cfg.WorkerSecret,
		DashboardOrigin: envOr("BUILDIT_DASHBOARD_ORIGIN", "*"),
	}

	rec := &recycler.Recycler{
		Store:    db,
		Log:      zlog,
		Deadline: config.RecycleWindow,
		Tick:     config.RecyclerTick,
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewRouter(api),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rec.Run(ctx)
	})
	g.Go(func() error {
		zlog.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		zlog.Error("coordinator exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
