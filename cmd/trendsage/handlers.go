package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/config"
	"github.com/sp18-himanshu-chauhan2/trendsage/internal/dispatch"
	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/notify"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/server"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/trend"
)

func loadConfig() (*config.Config, error) {
	godotenv.Load()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildScorer(cfg *config.Config) *trend.Scorer {
	var embedder trend.Embedder
	if cfg.Scoring.Embeddings.Enabled && cfg.Scoring.Embeddings.APIKey != "" {
		embedder = trend.NewOpenAIEmbedder(
			cfg.Scoring.Embeddings.APIKey,
			cfg.Scoring.Embeddings.Model,
			cfg.Scoring.Embeddings.BaseURL,
		)
	}
	return trend.NewScorer(embedder)
}

func buildPipeline(cfg *config.Config, db store.Store) *trend.Pipeline {
	client := trend.NewClient(
		cfg.Upstream.APIKey,
		cfg.Upstream.Model,
		cfg.Upstream.BaseURL,
		cfg.Upstream.ParseTimeout(),
	)
	weights := trend.Weights{
		Engagement: cfg.Scoring.EngagementWeight,
		Freshness:  cfg.Scoring.FreshnessWeight,
		Relevance:  cfg.Scoring.RelevanceWeight,
	}
	return trend.NewPipeline(db, client, buildScorer(cfg), weights,
		cfg.Upstream.Attempts, cfg.Upstream.ParseBackoff())
}

func buildNotifyManager(cfg *config.Config) (*notify.Manager, error) {
	var notifiers []notify.Notifier

	if cfg.Notify.SMTP.Enabled && cfg.Notify.SMTP.Host != "" {
		email, err := notify.NewEmail(
			cfg.Notify.SMTP.Host, cfg.Notify.SMTP.Port,
			cfg.Notify.SMTP.Username, cfg.Notify.SMTP.Password,
			cfg.Notify.SMTP.From,
		)
		if err != nil {
			return nil, fmt.Errorf("build email notifier: %w", err)
		}
		notifiers = append(notifiers, email)
	}
	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Secret))
	}

	return notify.NewManager(notifiers), nil
}

func runServe(port int) error {
	return serve(port, false)
}

func runDaemon(port int) error {
	return serve(port, true)
}

func serve(port int, withSweeps bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	notifyMgr, err := buildNotifyManager(cfg)
	if err != nil {
		return err
	}

	cronSpec := ""
	if withSweeps {
		cronSpec = cfg.Refresh.Cron
	}
	dispatcher := dispatch.New(db, buildPipeline(cfg, db), notifyMgr, cronSpec, cfg.Server.BaseURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "dispatcher error: %v\n", err)
		}
	}()

	srv := server.New(db, dispatcher, port, cfg.Server.CorsOrigins)
	return srv.ListenAndServe()
}

func runFetch(industry, region, persona, dateRange string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	q := &store.TrendQuery{
		ID:        uuid.NewString(),
		Industry:  industry,
		Region:    region,
		Persona:   persona,
		DateRange: dateRange,
		Status:    store.StatusPending,
	}
	ctx := context.Background()
	if err := db.CreateQuery(ctx, q); err != nil {
		return fmt.Errorf("create query: %w", err)
	}

	pipeline := buildPipeline(cfg, db)
	version, err := pipeline.Ingest(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("ingest query: %w", err)
	}

	results, err := db.ListResults(ctx, q.ID, version)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("no trends found for this query")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tENGAGE\tFRESH\tRELEV\tTOPIC")
	for _, r := range results {
		fmt.Fprintf(w, "%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			r.FinalScore, r.EngagementScore, r.FreshnessScore, r.RelevanceScore, r.Topic)
	}
	return w.Flush()
}

func runQueries(limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	queries, err := db.ListQueries(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("list queries: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(queries)
	}

	if len(queries) == 0 {
		fmt.Println("no queries yet (try: trendsage fetch)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tINDUSTRY\tREGION\tPERSONA\tDATE RANGE\tCREATED")
	for _, q := range queries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			q.ID, q.Status, q.Industry, q.Region, q.Persona, q.DateRange,
			q.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
