// Command evermind runs the memory-augmented chat agent, either as an
// HTTP service or as a terminal chat loop.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/evermind-ai/evermind/agent"
	anthropicgen "github.com/evermind-ai/evermind/agent/provider/anthropic"
	geminigen "github.com/evermind-ai/evermind/agent/provider/gemini"
	"github.com/evermind-ai/evermind/auth"
	"github.com/evermind-ai/evermind/config"
	"github.com/evermind-ai/evermind/logging"
	"github.com/evermind-ai/evermind/memory"
	"github.com/evermind-ai/evermind/memory/embedder/cached"
	geminiemb "github.com/evermind-ai/evermind/memory/embedder/gemini"
	"github.com/evermind-ai/evermind/memory/graph/neo4j"
	"github.com/evermind-ai/evermind/memory/store/chromem"
	"github.com/evermind-ai/evermind/memory/store/qdrant"
	"github.com/evermind-ai/evermind/server"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	if err := run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string) error {
	var configPath string

	cmd := &cli.Command{
		Name:  "evermind",
		Usage: "Personalized chat agent with long-term memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to YAML config file",
				Sources:     cli.EnvVars("EVERMIND_CONFIG"),
				Destination: &configPath,
			},
		},
		Commands: []*cli.Command{
			serveCommand(&configPath),
			chatCommand(&configPath),
		},
	}

	return cmd.Run(ctx, argv)
}

func serveCommand(configPath *string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP chat service",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			deps, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.close()

			authStore, err := auth.Open(cfg.AuthDB)
			if err != nil {
				return err
			}
			defer authStore.Close()

			srv := server.New(authStore, deps.handler, deps.manager, logger)
			httpSrv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr, "vector", cfg.Vector.Provider,
					"graph", cfg.Graph.Enabled, "provider", cfg.Provider)
				errCh <- httpSrv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "http server")
				}
			case <-stop:
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "shutdown http server")
				}
			}
			return nil
		},
	}
}

func chatCommand(configPath *string) *cli.Command {
	var ownerID string

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat loop in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "owner",
				Aliases:     []string{"o"},
				Usage:       "Owner ID to chat as",
				Required:    true,
				Destination: &ownerID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			deps, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.close()

			fmt.Println("evermind chat - press Ctrl+D to exit")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				reply, err := deps.handler.Handle(ctx, ownerID, line)
				if err != nil {
					logger.Error("turn failed", "error", err)
					continue
				}
				fmt.Println(reply)
			}
		},
	}
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// pipeline bundles the wired memory manager and turn handler with the
// resources they hold.
type pipeline struct {
	manager *memory.Manager
	handler *agent.Handler
	closers []func() error
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// buildPipeline constructs embedder, vector store, optional graph,
// generator, extractor, manager, and handler from config. All clients
// are created once here and passed by handle; nothing is global.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}

	embedder, err := geminiemb.New(ctx, geminiemb.Config{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.EmbeddingModel,
		Dimensions: cfg.Gemini.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	cachedEmb, err := cached.New(embedder, cfg.Memory.CacheEntries)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, func() error { cachedEmb.Close(); return nil })

	var store memory.Store
	switch cfg.Vector.Provider {
	case "qdrant":
		store, err = qdrant.New(ctx, qdrant.Config{
			Host:       cfg.Vector.Qdrant.Host,
			Port:       cfg.Vector.Qdrant.Port,
			APIKey:     cfg.Vector.Qdrant.APIKey,
			UseTLS:     cfg.Vector.Qdrant.UseTLS,
			Collection: cfg.Vector.Qdrant.Collection,
			Dimensions: embedder.Dimensions(),
		})
	default:
		store, err = chromem.New()
	}
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, store.Close)

	var gen agent.Generator
	switch cfg.Provider {
	case "anthropic":
		gen, err = anthropicgen.New(anthropicgen.Config{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
	default:
		gen, err = geminigen.New(ctx, geminigen.Config{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.GenerativeModel,
		})
	}
	if err != nil {
		return nil, err
	}

	opts := []memory.Option{memory.WithLogger(logger)}
	if cfg.Graph.Enabled {
		graph, err := neo4j.New(ctx, neo4j.Config{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, graph.Close)
		opts = append(opts, memory.WithGraph(graph))
	}

	extractor := memory.NewLLMExtractor(gen)
	p.manager = memory.NewManager(store, cachedEmb, extractor, cfg.ManagerConfig(), opts...)
	p.handler = agent.NewHandler(p.manager, gen, agent.Config{}, agent.WithLogger(logger))
	return p, nil
}
