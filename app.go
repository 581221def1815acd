package main

import (
	"fmt"

	"go.uber.org/zap"

	"content_ideas_assistant/archive"
	"content_ideas_assistant/config"
	"content_ideas_assistant/dialogue"
	"content_ideas_assistant/gateway"
	"content_ideas_assistant/generator"
	"content_ideas_assistant/moderation"
	"content_ideas_assistant/store"
)

type registry interface {
	dialogue.Registry
	Close() error
}

// app wires the components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	agent      *generator.Agent
	controller *dialogue.Controller
	sessions   *store.MemorySessions
	registry   registry
	archive    *archive.Local
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	logger.Info("configuration", zap.String("summary", cfg.Summary()))

	gw, err := gateway.New(cfg.GatewaySettings(), logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, sessions: store.NewMemorySessions()}
	opts := []generator.Option{generator.WithLogger(logger)}
	if cfg.Images.SaveLocally {
		if a.archive, err = archive.NewLocal(cfg.Images.Folder); err != nil {
			return nil, err
		}
		opts = append(opts, generator.WithImageStore(a.archive))
	}
	if a.agent, err = generator.NewAgent(gw, cfg.GeneratorSettings(), opts...); err != nil {
		return nil, err
	}
	engine, err := moderation.NewEngine(gw, cfg.ModerationSettings(), logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Registry.Driver {
	case "sqlite":
		r, err := store.NewSQLiteRegistry(cfg.Registry.Path)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		a.registry = r
	default:
		a.registry = store.NewMemoryRegistry()
	}

	a.controller, err = dialogue.NewController(a.agent, engine, gw, a.sessions, a.registry, dialogue.Options{
		ReturningAfter: cfg.ReturningAfter(),
		Language:       cfg.Session.Language,
	}, logger)
	if err != nil {
		a.registry.Close()
		return nil, err
	}
	return a, nil
}

// imageFolder returns the archive, creating it when images are not
// archived by the agent.
func (a *app) imageFolder() (*archive.Local, error) {
	if a.archive != nil {
		return a.archive, nil
	}
	return archive.NewLocal(a.cfg.Images.Folder)
}

// Close waits for background image saves and releases the registry.
func (a *app) Close() error {
	a.agent.Wait()
	return a.registry.Close()
}

func consoleUser(name string) dialogue.User {
	if name == "" {
		name = "друг"
	}
	return dialogue.User{ID: 1, ChatID: 1, Name: name}
}
