package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/javierg83/lic-etl-semantic-extractor/config"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/concepts"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/fragcache"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/prompts"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/queue/streams"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/retrieval"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/runner"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/runtime"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/server"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/store"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/worker"
	"github.com/javierg83/lic-etl-semantic-extractor/provider"
)

func workerCMD() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume extract.requested events and run extractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)

			tele, meter, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{
				ServiceName:    "licsem-worker",
				ServiceVersion: version,
			})
			if err != nil {
				return fmt.Errorf("telemetry init: %w", err)
			}
			defer func() { _ = tele.Shutdown(context.Background()) }()

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			defer func() { _ = rdb.Close() }()

			schemaReg := streams.NewSchemaRegistry()
			if err := streams.RegisterBaseSchemas(schemaReg); err != nil {
				return fmt.Errorf("schema registry: %w", err)
			}
			if err := streams.EnsureGroup(ctx, rdb, cfg.Queue.Stream, cfg.Queue.Group); err != nil {
				return fmt.Errorf("ensure group: %w", err)
			}
			consumerName := fmt.Sprintf("licsem-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(rdb, schemaReg, cfg.Queue.Group, consumerName, logger)

			st, err := store.New(ctx, cfg.Storage.Postgres, logger)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer func() { _ = st.Close() }()

			run, err := buildRunner(cfg, rdb, st, logger)
			if err != nil {
				return err
			}

			if cfg.Telemetry.Enabled {
				ops := server.NewOps(tele.Registry, logger, server.WithQueueStatus(func(ctx context.Context) (streams.GroupStatus, error) {
					return consumer.GroupStatus(ctx, cfg.Queue.Stream)
				}))
				go func() {
					if err := ops.Start(cfg.Telemetry.Address); err != nil {
						logger.Printf("ops server error: %v", err)
					}
				}()
				defer func() { _ = ops.Shutdown(context.Background()) }()
			}

			processor := worker.NewProcessor(logger, run, consumer, cfg.Queue.Stream, meter, tracer)
			return processor.Start(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}

// buildRunner wires the extraction pipeline shared by the worker and the
// one-shot CLI.
func buildRunner(cfg *config.Config, rdb *redis.Client, committer runner.Committer, logger *log.Logger) (*runner.Runner, error) {
	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	promptStore := prompts.NewStore(cfg.Extraction.PromptDir)
	reg := extraction.NewRegistry()
	if err := concepts.RegisterAll(reg, promptStore, logger); err != nil {
		return nil, fmt.Errorf("register concepts: %w", err)
	}

	cache := fragcache.New(fragcache.RedisKV{Client: rdb}, logger)
	engine := retrieval.NewEngine(prov, logger)
	opts := provider.Options{
		Model:       cfg.LLM.CompletionModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	return runner.New(cache, engine, reg, prov, committer, concepts.PromptVersions, cfg.Extraction, opts, logger), nil
}
