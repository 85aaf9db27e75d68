// Command bandaid runs the poster pipeline service: ingestion, agents,
// workflows, and the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"

	"bandaid/internal/ai"
	"bandaid/internal/blob"
	"bandaid/internal/bus"
	"bandaid/internal/config"
	"bandaid/internal/db"
	"bandaid/internal/ingest"
	"bandaid/internal/logging"
	"bandaid/internal/orchestrator"
	"bandaid/internal/poster"
	"bandaid/internal/scrape"
	"bandaid/internal/spotify"
	"bandaid/internal/spotifyuser"
	"bandaid/internal/web"
	"bandaid/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.DB.URL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	blobs, err := blob.Open(cfg.Blob.Dir)
	if err != nil {
		return err
	}
	defer blobs.Close()

	b := bus.New(logging.Component(logger, "bus"))
	defer b.Close()

	aiClient := ai.NewClient(ai.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		VisionModel:    cfg.AI.VisionModel,
		SummarizeModel: cfg.AI.SummarizeModel,
	})
	catalogClient := spotify.NewClientCredentials(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	authenticator := spotify.NewAuthenticator(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.RedirectURL())

	posters := poster.NewRegistry(
		database.Posters(), blobs, aiClient, b,
		poster.PublicHosts{Uploads: cfg.Blob.PublicUploadsHost, Posters: cfg.Blob.PublicPostersHost},
		logging.Component(logger, "poster"),
	)
	users := spotifyuser.NewRegistry(
		database.Users(), authenticator, nil, posterDirectory{posters}, blobs, b,
		cfg.Brand, logging.Component(logger, "user"),
	)
	coordinator := orchestrator.New(
		database.Catalog(), posterAgents{posters}, userAgents{users}, b,
		logging.Component(logger, "orchestrator"),
	)
	if err := coordinator.Start(ctx, b); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}

	researcher := workflow.NewResearcher(
		catalogClient, scrape.New(), aiClient, workflowPosters{posters},
		database.WorkflowSteps(), logging.Component(logger, "research"),
	)
	normalizer := workflow.NewNormalizer(
		aiClient, blobs, workflowPosters{posters},
		database.WorkflowSteps(), logging.Component(logger, "normalize"),
	)
	scheduler := workflow.NewScheduler(researcher, normalizer, logging.Component(logger, "scheduler"))
	if err := scheduler.Start(ctx, b); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	consumer := ingest.NewConsumer(coordinator, logging.Component(logger, "ingest"))
	if err := consumer.Start(ctx, b); err != nil {
		return fmt.Errorf("starting ingest consumer: %w", err)
	}

	sessions := web.NewSessionStore()
	handlers := web.NewHandlers(
		authenticator, nil, webUsers{users}, coordinator, sessions,
		logging.Component(logger, "web"),
	)
	server := web.NewServer(cfg.Server.Addr, handlers, logging.Component(logger, "web"))
	return server.Run()
}

// The registries hand out concrete agents; these adapters narrow them to
// the interfaces each consumer declares.

type posterAgents struct{ reg *poster.Registry }

func (p posterAgents) Get(id string) orchestrator.PosterAgent { return p.reg.Get(id) }
func (p posterAgents) Evict(id string)                        { p.reg.Evict(id) }

type userAgents struct{ reg *spotifyuser.Registry }

func (u userAgents) Get(id string) orchestrator.UserAgent { return u.reg.Get(id) }

type posterDirectory struct{ reg *poster.Registry }

func (d posterDirectory) Poster(id string) spotifyuser.PosterView { return d.reg.Get(id) }

type workflowPosters struct{ reg *poster.Registry }

func (w workflowPosters) Get(id string) workflow.PosterAgent { return w.reg.Get(id) }

type webUsers struct{ reg *spotifyuser.Registry }

func (u webUsers) Get(id string) web.UserAgent { return u.reg.Get(id) }
func (u webUsers) Evict(id string)             { u.reg.Evict(id) }
