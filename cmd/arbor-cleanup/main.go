// Command arbor-cleanup is the AWS Lambda entrypoint for the bucket cleanup
// stream handler. Attach it to the documents table stream and run the tree
// with SyncBucketCleanup disabled.
//
// Environment:
//
//	ARBOR_TABLE          documents table (default arbor_documents)
//	ARBOR_CATALOG_TABLE  bucket catalog table (default arbor_buckets)
//	ARBOR_LOG_LEVEL      debug, info, warn or error (default info)
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/viper"

	"github.com/jacentio/arbor/store/dynamo"
	"github.com/jacentio/arbor/stream"
)

func main() {
	viper.SetEnvPrefix("arbor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	defaults := dynamo.DefaultConfig()
	viper.SetDefault("table", defaults.DocumentTable)
	viper.SetDefault("catalog-table", defaults.CatalogTable)
	viper.SetDefault("log-level", "info")

	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load aws config", "error", err)
		os.Exit(1)
	}

	adapter := dynamo.New(dynamodb.NewFromConfig(awsCfg), dynamo.Config{
		DocumentTable: viper.GetString("table"),
		CatalogTable:  viper.GetString("catalog-table"),
	})

	h := stream.NewHandler(adapter, logger)
	lambda.Start(h.HandleBucketCleanup)
}
