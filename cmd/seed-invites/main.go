// Command seed-invites issues invite codes from the command line.
//
//	seed-invites -count 5
//	seed-invites -emails "ana@example.com,bo@example.com" -ttl 72h
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
		logrus.WithError(err).Error("seed invites failed")
		os.Exit(1)
	}
}

func run() error {
	count := flag.Int("count", 1, "number of unbound codes to issue when -emails is empty")
	emails := flag.String("emails", "", "comma separated emails, one bound code per email")
	ttl := flag.Duration("ttl", 0, "code lifetime, defaults to PORTAL_INVITE_TTL")
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *ttl <= 0 {
		*ttl = cfg.InviteTTL
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger := portal.NewLogrusLogger(logrus.StandardLogger(), "seed-invites")

	db, err := store.Open(ctx, cfg.GetPersistence(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := portal.NewRepositoryManager(db)
	audit := portal.NewAuditRecorder(repo.AuditLogs(), portal.WithAuditLogger(logger))
	issuer := portal.NewIssueInviteHandler(repo, audit)

	targets := portal.SplitEmails(*emails)
	if len(targets) == 0 {
		for i := 0; i < *count; i++ {
			targets = append(targets, "")
		}
	}

	for _, email := range targets {
		code, err := issuer.ExecuteAsSystem(ctx, portal.IssueInviteMessage{Email: email, TTL: *ttl})
		if err != nil {
			return fmt.Errorf("issue invite for %q: %w", email, err)
		}
		bound := email
		if bound == "" {
			bound = portal.InviteWildcardEmail
		}
		fmt.Printf("%s\t%s\n", code.Code, bound)
	}
	return nil
}
