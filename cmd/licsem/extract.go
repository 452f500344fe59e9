package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/javierg83/lic-etl-semantic-extractor/config"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/queue/streams"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/runner"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/store"
)

func extractCMD() *cobra.Command {
	var (
		cfgPath  string
		tenderID string
		name     string
		docs     []string
		concept  string
		debug    bool
		enqueue  bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run extraction for one tender, or enqueue it for a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenderID == "" || len(docs) == 0 {
				return fmt.Errorf("--tender and --docs are required")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()
			logger := log.New(os.Stdout, "[EXTRACT] ", log.LstdFlags)

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			defer func() { _ = rdb.Close() }()

			if enqueue {
				schemaReg := streams.NewSchemaRegistry()
				if err := streams.RegisterBaseSchemas(schemaReg); err != nil {
					return fmt.Errorf("schema registry: %w", err)
				}
				pub := streams.NewPublisher(rdb, schemaReg)
				id, err := pub.PublishRaw(ctx, cfg.Queue.Stream, streams.EventExtractRequested, "v1", streams.ExtractRequested{
					LicitacionID:     tenderID,
					NombreLicitacion: name,
					DocumentIDs:      docs,
					Concepto:         concept,
					Debug:            debug,
				})
				if err != nil {
					return fmt.Errorf("enqueue: %w", err)
				}
				logger.Printf("job enqueued | stream=%s id=%s", cfg.Queue.Stream, id)
				return nil
			}

			var committer runner.Committer
			if debug {
				committer = noCommit{}
			} else {
				st, err := store.New(ctx, cfg.Storage.Postgres, logger)
				if err != nil {
					return fmt.Errorf("postgres: %w", err)
				}
				defer func() { _ = st.Close() }()
				committer = st
			}

			run, err := buildRunner(cfg, rdb, committer, logger)
			if err != nil {
				return err
			}

			reports, err := run.Run(ctx, runner.Request{
				TenderID:    tenderID,
				TenderName:  name,
				DocumentIDs: docs,
				Concept:     concept,
				Debug:       debug,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().StringVar(&tenderID, "tender", "", "tender identifier (licitacion_id)")
	cmd.Flags().StringVar(&name, "name", "", "tender display name, used for artifact folders")
	cmd.Flags().StringSliceVar(&docs, "docs", nil, "document ids whose fragments will be searched")
	cmd.Flags().StringVar(&concept, "concept", "", "single concept to extract (default: all registered)")
	cmd.Flags().BoolVar(&debug, "debug", false, "skip persistence, write artifacts only")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "publish the job to the stream instead of running inline")

	return cmd
}

// noCommit satisfies the runner's persistence hook in debug mode, where
// the runner never calls it.
type noCommit struct{}

func (noCommit) CommitRun(ctx context.Context, rec store.RunRecord) (int64, error) {
	return 0, fmt.Errorf("persistence disabled in debug mode")
}
