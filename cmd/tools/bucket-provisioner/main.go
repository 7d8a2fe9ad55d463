// cmd/tools/bucket-provisioner/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	commonaws "form-relay/internal/common/aws"
	"form-relay/internal/common/config"
	"form-relay/internal/common/logger"
	"form-relay/internal/storage/bucket"
)

// Creates the submissions bucket if it does not exist yet. Safe to run
// repeatedly.
func main() {
	configPath := flag.String("config", "", "Path to a config file, validated in full (defaults to configs/config.yaml)")
	bucketName := flag.String("bucket", "", "Bucket name, overrides storage.s3.bucket")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.LoadUnchecked()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	s3cfg := cfg.Storage.S3
	if *bucketName != "" {
		s3cfg.Bucket = *bucketName
	}
	if s3cfg.Bucket == "" || s3cfg.Region == "" {
		fmt.Fprintln(os.Stderr, "storage.s3.bucket and storage.s3.region are required")
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, "console")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := commonaws.NewS3Client(ctx, s3cfg)
	if err != nil {
		log.Error("Failed to create S3 client", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	store := bucket.New(client, s3cfg.Bucket, s3cfg.Region, s3cfg.Prefix, log)
	if err := store.EnsureBucket(ctx); err != nil {
		log.Error("Bucket provisioning failed", map[string]interface{}{"bucket": s3cfg.Bucket, "error": err})
		os.Exit(1)
	}
	fmt.Printf("Bucket %s is ready.\n", s3cfg.Bucket)
}
