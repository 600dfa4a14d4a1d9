// Command suppressctl administers the contact suppression list from a shell:
// hashing values the way the service stores them, generating encryption keys,
// and checking, adding, erasing, or recovering entries.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/totalaud/contact-safety/internal/config"
	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/hashcrypto"
	"github.com/totalaud/contact-safety/internal/pkg/logger"
	"github.com/totalaud/contact-safety/internal/repository/postgres"
	"github.com/totalaud/contact-safety/internal/suppression"
)

const usage = `usage: suppressctl <command> [flags] [args]

commands:
  hash [-domain] <value>...     print the stored hash of each value
  genkey                        print a new AES-256 encryption key
  check [-user id] <email>...   report whether each address is suppressed
  add [flags] <email|domain>    add a suppression entry
  erase <email>                 delete every entry for an address
  recover <email>               decrypt the entries held for an address
  count [-scope global|user]    count stored entries
`

// backend is what the database-backed commands run against.
type backend struct {
	svc   *suppression.Service
	repo  *postgres.SuppressionRepo
	close func()
}

// connect is replaced in tests.
var connect = openBackend

func main() {
	logger.SetOutput(os.Stderr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "hash":
		err = runHash(rest, stdout)
	case "genkey":
		err = runGenKey(stdout)
	case "check", "add", "erase", "recover", "count":
		err = runBackend(ctx, cmd, rest, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "suppressctl %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func runHash(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	asDomain := fs.Bool("domain", false, "hash values as bare domains")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no values given")
	}
	for _, v := range fs.Args() {
		norm := hashcrypto.Normalize(v)
		if *asDomain {
			fmt.Fprintf(out, "%s\tdomain=%s\n", norm, hashcrypto.HashDomain(v))
			continue
		}
		fmt.Fprintf(out, "%s\temail=%s", norm, hashcrypto.HashEmail(v))
		if d := hashcrypto.DomainOf(v); d != "" {
			fmt.Fprintf(out, "\tdomain=%s", hashcrypto.HashDomain(d))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runGenKey(out io.Writer) error {
	key, err := hashcrypto.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, key)
	return nil
}

func runBackend(ctx context.Context, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	userID := fs.String("user", "", "user id for check or user-scoped adds")
	reason := fs.String("reason", string(domain.ReasonManual), "suppression reason")
	scope := fs.String("scope", string(domain.ScopeGlobal), "suppression scope")
	source := fs.String("source", "suppressctl", "where the request came from")
	notes := fs.String("notes", "", "free-form note stored with the entry")
	wholeDomain := fs.Bool("domain", false, "add: suppress the whole domain")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd != "count" && fs.NArg() == 0 {
		return errors.New("no address given")
	}

	b, err := connect(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	switch cmd {
	case "check":
		results := b.svc.CheckBatch(ctx, fs.Args(), *userID)
		for _, email := range fs.Args() {
			r := results[email]
			if !r.IsSuppressed {
				fmt.Fprintf(out, "%s\tok\n", email)
				continue
			}
			fmt.Fprintf(out, "%s\tsuppressed\treason=%s\tscope=%s", email, r.Reason, r.Scope)
			if r.SuppressedAt != nil {
				fmt.Fprintf(out, "\tsince=%s", r.SuppressedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(out)
		}
		return nil

	case "add":
		req := suppression.NewEntry{
			Scope:  domain.SuppressionScope(*scope),
			Reason: domain.SuppressionReason(*reason),
			Source: *source,
			Notes:  *notes,
		}
		if *wholeDomain {
			req.Domain = fs.Arg(0)
		} else {
			req.Email = fs.Arg(0)
		}
		if !b.svc.Add(ctx, req, *userID) {
			return errors.New("entry not stored, see log")
		}
		fmt.Fprintf(out, "added %s\n", hashcrypto.Normalize(fs.Arg(0)))
		return nil

	case "erase":
		n, err := b.svc.Erase(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %d entries\n", n)
		return nil

	case "recover":
		entries, err := b.svc.Recover(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "count":
		n, err := b.repo.Count(ctx, domain.SuppressionScope(*scope))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\n", n)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// openBackend connects with the server's configuration. When Redis is set the
// shared check cache is invalidated on writes, so running servers see them.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.LoadFromEnv(envOrDefault("CONFIG_FILE", "config/config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(3)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	closers := []func(){func() { db.Close() }}

	opts := suppression.Options{EncryptionKey: cfg.Suppression.EncryptionKey}
	if cfg.Redis.URL != "" {
		if ro, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			client := redis.NewClient(ro)
			opts.Cache = suppression.NewRedisCache(client, cfg.Suppression.CacheTTL(), cfg.Redis.KeyPrefix)
			closers = append(closers, func() { client.Close() })
		}
	}

	repo := postgres.NewSuppressionRepo(db)
	return &backend{
		svc:  suppression.NewService(repo, opts),
		repo: repo,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
