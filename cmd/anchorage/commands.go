package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridian-labs/anchorage/pkg/archive"
	"github.com/meridian-labs/anchorage/pkg/config"
	"github.com/meridian-labs/anchorage/pkg/store"
)

// runMigrateCmd applies migrations to the configured databases and
// exits.
func runMigrateCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(servingDBPath(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	if err := store.Migrate(ctx, db); err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "sqlite migrations applied")

	if cfg.IsPostgres() {
		pg, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(stderr, "open postgres: %v\n", err)
			return 1
		}
		defer func() { _ = pg.Close() }()
		if err := store.MigratePostgres(ctx, pg); err != nil {
			fmt.Fprintf(stderr, "migrate postgres: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "postgres migrations applied")
	}
	return 0
}

// runExportCmd bundles an event range into a content-addressed archive
// pack and writes it to S3 or the local archive directory.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fromFlag := fs.String("from", "", "range start, RFC3339 (default: 24h ago)")
	toFlag := fs.String("to", "", "range end, RFC3339 (default: now)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now
	var err error
	if *fromFlag != "" {
		if from, err = time.Parse(time.RFC3339, *fromFlag); err != nil {
			fmt.Fprintf(stderr, "invalid -from: %v\n", err)
			return 2
		}
	}
	if *toFlag != "" {
		if to, err = time.Parse(time.RFC3339, *toFlag); err != nil {
			fmt.Fprintf(stderr, "invalid -to: %v\n", err)
			return 2
		}
	}
	if !from.Before(to) {
		fmt.Fprintln(stderr, "-from must be before -to")
		return 2
	}

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(servingDBPath(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	var blobs archive.BlobStore
	if cfg.ArchiveBucket != "" {
		s3Store, err := archive.NewS3Store(ctx, archive.S3Config{
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Endpoint: cfg.ArchiveEndpoint,
		})
		if err != nil {
			fmt.Fprintf(stderr, "s3 store: %v\n", err)
			return 1
		}
		blobs = s3Store
	} else {
		blobs = archive.NewFileStore(cfg.ArchiveDir)
	}

	exporter := archive.NewExporter(store.NewEventStore(db), blobs)
	packID, err := exporter.Export(ctx, from, to)
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, packID)
	return 0
}

// runHealthCmd probes the local health endpoint.
func runHealthCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://localhost:" + cfg.Port + "/healthz")
	if err != nil {
		fmt.Fprintf(stderr, "unreachable: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "unhealthy: status %d\n", resp.StatusCode)
		return 1
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body["status"] != "" {
		fmt.Fprintln(stdout, body["status"])
	} else {
		fmt.Fprintln(stdout, "ok")
	}
	return 0
}
