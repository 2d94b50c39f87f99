// Command dedup-profiles removes team profiles whose emails only differ
// by case or whitespace, keeping the oldest one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/internal/config"
	"github.com/goliatone/go-portal/internal/store"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("dedup profiles failed")
		os.Exit(1)
	}
}

func run() error {
	dryRun := flag.Bool("dry-run", false, "only report duplicates")
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := portal.NewLogrusLogger(logrus.StandardLogger(), "dedup-profiles")

	db, err := store.Open(ctx, cfg.GetPersistence(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := portal.NewRepositoryManager(db)

	groups, err := portal.FindDuplicateProfiles(ctx, repo.Principals())
	if err != nil {
		return err
	}

	for _, g := range groups {
		logrus.WithFields(logrus.Fields{
			"email":      g.Email,
			"keep":       g.Keep.ID.String(),
			"duplicates": len(g.Removed),
		}).Info("duplicate profile group")
	}

	if *dryRun || len(groups) == 0 {
		fmt.Printf("%d duplicate groups\n", len(groups))
		return nil
	}

	audit := portal.NewAuditRecorder(repo.AuditLogs(), portal.WithAuditLogger(logger))

	removed, err := portal.MergeDuplicateProfiles(ctx, repo, audit, groups)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d duplicate profiles\n", removed)
	return nil
}
