package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/store/boltstore"
	"github.com/jacentio/arbor/store/dynamo"
	"github.com/jacentio/arbor/tree"
)

var (
	// tr is opened by openTree before any store-backed command runs.
	tr *tree.Tree

	registry *prometheus.Registry
)

// initConfig loads .env files and binds ARBOR_* environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("arbor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// setupStoreFlags adds backend and tree flags to cmd.
func setupStoreFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String("backend", "bolt", "store backend (bolt, dynamodb)")
	flags.String("bolt-path", "arbor.db", "bolt database file")
	flags.String("table", dynamo.DefaultConfig().DocumentTable, "DynamoDB documents table")
	flags.String("catalog-table", dynamo.DefaultConfig().CatalogTable, "DynamoDB bucket catalog table")
	flags.String("endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	flags.Int("max-retries", dynamo.DefaultConfig().MaxRetries, "optimistic write attempts for nested DynamoDB updates")
	flags.Bool("create-tables", false, "create the DynamoDB tables if missing")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("verify-writes", true, "re-read written locations and fail on mismatch")
	flags.Bool("sync-cleanup", true, "drop emptied buckets synchronously")
	flags.Bool("index-not-defined-ok", false, "return empty results instead of failing when an index rule is missing")
	flags.Bool("metrics", false, "print store metrics to stderr on exit")
}

// setupQueryFlags adds query parameter flags to cmd.
func setupQueryFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("order-by", "", `ordering: "$key", "$value" or a child field`)
	flags.String("start-at", "", "inclusive lower bound (JSON, falls back to text)")
	flags.String("end-at", "", "inclusive upper bound (JSON, falls back to text)")
	flags.String("equal-to", "", "exact match on the ordering key")
	flags.Int("limit-first", 0, "keep the first n ordered children")
	flags.Int("limit-last", 0, "keep the last n ordered children")
	flags.Bool("pretty", false, "indent JSON output")
}

// queryParams maps the query flags set on cmd to transport parameter names.
func queryParams(cmd *cobra.Command) map[string]string {
	names := map[string]string{
		"order-by":    "orderBy",
		"start-at":    "startAt",
		"end-at":      "endAt",
		"equal-to":    "equalTo",
		"limit-first": "limitToFirst",
		"limit-last":  "limitToLast",
	}
	params := make(map[string]string)
	for flag, param := range names {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			params[param] = f.Value.String()
		}
	}
	return params
}

// newLogger builds the text logger for the configured level.
func newLogger(level string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), nil
}

// openAdapter connects the configured backend.
func openAdapter(ctx context.Context) (store.Adapter, error) {
	switch backend := viper.GetString("backend"); backend {
	case "bolt":
		a, err := boltstore.Open(viper.GetString("bolt-path"))
		if err != nil {
			return nil, err
		}
		return a, nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if ep := viper.GetString("endpoint"); ep != "" {
				o.BaseEndpoint = aws.String(ep)
			}
		})
		a := dynamo.New(client, dynamo.Config{
			DocumentTable: viper.GetString("table"),
			CatalogTable:  viper.GetString("catalog-table"),
			MaxRetries:    viper.GetInt("max-retries"),
		})
		if viper.GetBool("create-tables") {
			if err := a.CreateTables(ctx); err != nil {
				return nil, fmt.Errorf("create tables: %w", err)
			}
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// openTree binds flags and opens the tree for store-backed commands.
func openTree(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}
	if tr != nil {
		// left open by a command that failed before its post-run hook
		_ = tr.Close()
		tr = nil
	}
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	adapter, err := openAdapter(cmd.Context())
	if err != nil {
		return err
	}

	registry = prometheus.NewRegistry()
	cfg := tree.DefaultConfig()
	cfg.Logger = logger
	cfg.VerifyWrites = viper.GetBool("verify-writes")
	cfg.SyncBucketCleanup = viper.GetBool("sync-cleanup")
	cfg.IndexNotDefinedAsEmpty = viper.GetBool("index-not-defined-ok")
	tr = tree.New(store.Instrument(adapter, registry), cfg)

	logger.Debug("tree opened", "backend", viper.GetString("backend"))
	return nil
}

// closeTree releases the store and optionally prints collected metrics.
func closeTree(cmd *cobra.Command, _ []string) error {
	if tr == nil {
		return nil
	}
	defer func() { tr = nil }()

	if viper.GetBool("metrics") {
		if err := writeMetrics(); err != nil {
			return err
		}
	}
	return tr.Close()
}

func writeMetrics() error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(os.Stderr, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
