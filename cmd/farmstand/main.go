package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/farmstand/farmstand/internal/backend"
	"github.com/farmstand/farmstand/internal/config"
	"github.com/farmstand/farmstand/internal/database"
	"github.com/farmstand/farmstand/internal/metrics"
	"github.com/farmstand/farmstand/internal/mqttclient"
	"github.com/farmstand/farmstand/internal/schema"
	"github.com/farmstand/farmstand/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

// Global flags
var overrides config.Overrides

var rootCmd = &cobra.Command{
	Use:           "farmstand",
	Short:         "Farm storefront schema bootstrap service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	pf.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&overrides.Backend, "backend", "", "Setup backend: rest or postgres")
	pf.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	pf.StringVar(&overrides.SupabaseURL, "supabase-url", "", "Supabase project URL")

	serveCmd.Flags().StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sqlCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	backend backend.Client
	db      *database.DB
	avatars storage.AvatarStore
	runner  *schema.Runner
	mqtt    *mqttclient.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	a := &app{cfg: cfg, log: log}

	// Backend
	switch cfg.Backend {
	case config.BackendPostgres:
		dbLog := log.With().Str("component", "database").Logger()
		connectCtx, cancel := context.WithTimeout(ctx, cfg.BackendTimeout)
		a.db, err = database.Connect(connectCtx, cfg.DatabaseURL, dbLog)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", database.MaskDSN(cfg.DatabaseURL), err)
		}
		a.backend = backend.NewPostgresClient(a.db)
		prometheus.MustRegister(metrics.NewCollector(a.db.Pool))
	default:
		rest, err := backend.NewRESTClient(cfg.SupabaseURL, cfg.APIKey(), cfg.BackendTimeout)
		if err != nil {
			return nil, err
		}
		a.backend = rest
		warnKeyRole(log, cfg.APIKey())
	}

	// Storage
	storeLog := log.With().Str("component", "storage").Logger()
	avatars, s3store, err := storage.New(cfg.Storage, storeLog)
	if err != nil {
		a.close()
		return nil, err
	}
	a.avatars = avatars

	// Schema
	schemaLog := log.With().Str("component", "schema").Logger()
	var buckets schema.BucketEnsurer
	if s3store != nil {
		buckets = s3store
	}
	boot := schema.NewBootstrapper(a.backend, buckets, schemaLog)
	a.runner, err = schema.NewRunner(boot, cfg.Migrations, schemaLog)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// connectMQTT attaches the optional event publisher to the runner.
func (a *app) connectMQTT() {
	if a.cfg.MQTTBrokerURL == "" {
		return
	}
	mqttLog := a.log.With().Str("component", "mqtt").Logger()
	client, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL:   a.cfg.MQTTBrokerURL,
		ClientID:    a.cfg.MQTTClientID,
		TopicPrefix: a.cfg.MQTTTopicPrefix,
		Username:    a.cfg.MQTTUsername,
		Password:    a.cfg.MQTTPassword,
		Log:         mqttLog,
	})
	if err != nil {
		// Events are advisory; setup works without them.
		a.log.Warn().Err(err).Str("broker", a.cfg.MQTTBrokerURL).Msg("mqtt unavailable, setup events disabled")
		return
	}
	a.mqtt = client
	a.runner.OnResult = func(o schema.Outcome) {
		client.PublishEvent(mqttclient.Event{
			Name:    o.Name,
			Success: o.Success,
			Message: o.Message,
			Time:    time.Now().UTC(),
		})
	}
}

func (a *app) close() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// warnKeyRole flags API keys that most likely cannot run DDL.
func warnKeyRole(log zerolog.Logger, apiKey string) {
	role, err := backend.KeyRole(apiKey)
	if err != nil {
		log.Debug().Err(err).Msg("could not read api key role")
		return
	}
	if role != "service_role" {
		log.Warn().Str("role", role).Msg("api key is not a service_role key, schema changes may be rejected")
	}
}
