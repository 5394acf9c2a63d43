package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/capiscio/pledge-core/internal/api"
	"github.com/capiscio/pledge-core/internal/config"
	"github.com/capiscio/pledge-core/pkg/adminguard"
	"github.com/capiscio/pledge-core/pkg/badge"
	"github.com/capiscio/pledge-core/pkg/eligibility"
	"github.com/capiscio/pledge-core/pkg/journal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveConfigFile  string
	serveListen      string
	serveOwner       string
	serveOwnerKey    string
	serveLogLevel    string
	serveEligibility string
	serveJournal     string
	serveJournalPath string
	serveRedis       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pledge HTTP API",
	Long: `Start the pledge HTTP API.

Settings come from the config file, then PLEDGE_* environment variables,
then flags. The journal is replayed before the listener opens, so a
restarted server resumes with the same ledger.`,
	Example: `  # In-memory server with a static allow-list from config
  pledge serve --config pledge.yaml

  # Durable journal, redis eligibility
  pledge serve --owner-key owner.pub.jwk --journal badger --journal-path ./data \
    --eligibility redis --redis localhost:6379`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "Path to YAML config file")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (e.g. :8080)")
	serveCmd.Flags().StringVar(&serveOwner, "owner", "", "Owner did:key subject")
	serveCmd.Flags().StringVar(&serveOwnerKey, "owner-key", "", "Owner key: JWK file (public or private) or key set URL")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveEligibility, "eligibility", "", "Eligibility backend (static, file, http, redis)")
	serveCmd.Flags().StringVar(&serveJournal, "journal", "", "Journal backend (memory, file, badger, redis)")
	serveCmd.Flags().StringVar(&serveJournalPath, "journal-path", "", "Journal file or directory")
	serveCmd.Flags().StringVar(&serveRedis, "redis", "", "Redis address (host:port)")
}

// applyServeFlags overlays explicitly set flags onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	set("listen", &cfg.ListenAddr, serveListen)
	set("owner", &cfg.Owner, serveOwner)
	set("owner-key", &cfg.OwnerKey, serveOwnerKey)
	set("log-level", &cfg.LogLevel, serveLogLevel)
	set("eligibility", &cfg.Eligibility.Backend, serveEligibility)
	set("journal", &cfg.Journal.Backend, serveJournal)
	set("journal-path", &cfg.Journal.Path, serveJournalPath)
	set("redis", &cfg.RedisAddr, serveRedis)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigFile)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner, guard, err := loadOwner(ctx, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := &badge.Metrics{}
	metrics.Register(registry)

	rt, err := newRuntime(ctx, cfg, owner, metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("failed to close runtime", "error", err)
		}
	}()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.New(api.Options{
			Service:  rt.svc,
			Guard:    guard,
			Gatherer: registry,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("pledge API listening",
		"addr", cfg.ListenAddr,
		"owner", owner,
		"eligibility", cfg.Eligibility.Backend,
		"journal", cfg.Journal.Backend,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadOwner resolves the owner subject and the guard that verifies owner
// tokens. ownerKey may be a JWK file or the URL of a published key set and
// wins over a bare did:key; if both are given they must agree.
func loadOwner(ctx context.Context, cfg *config.Config) (string, *adminguard.Guard, error) {
	var key adminguard.OwnerKey
	switch {
	case cfg.OwnerKey != "":
		var err error
		if strings.HasPrefix(cfg.OwnerKey, "https://") || strings.HasPrefix(cfg.OwnerKey, "http://") {
			key, err = adminguard.NewKeySetFetcher().FetchOwnerKey(ctx, cfg.OwnerKey)
		} else {
			key, err = adminguard.LoadKey(cfg.OwnerKey)
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to load owner key: %w", err)
		}
		if cfg.Owner != "" && cfg.Owner != key.Subject() {
			return "", nil, fmt.Errorf("owner %q does not match owner key %q", cfg.Owner, key.Subject())
		}
	default:
		pub, err := adminguard.PublicKeyFromKeyDID(cfg.Owner)
		if err != nil {
			return "", nil, fmt.Errorf("owner must be an Ed25519 did:key: %w", err)
		}
		key = adminguard.OwnerKey{PublicKey: pub}
	}

	guard, err := adminguard.New(adminguard.Config{PublicKey: key.PublicKey})
	if err != nil {
		return "", nil, err
	}
	return key.Subject(), guard, nil
}

// runtime holds the service and the backends it was built on.
type runtime struct {
	svc     *badge.Service
	journal journal.Journal
	rdb     *redis.Client
}

func newRuntime(ctx context.Context, cfg *config.Config, owner string, metrics *badge.Metrics, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}

	if cfg.Eligibility.Backend == config.EligibilityRedis || cfg.Journal.Backend == config.JournalRedis {
		rt.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rt.rdb.Ping(ctx).Err(); err != nil {
			_ = rt.rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
	}

	oracle, err := buildOracle(cfg, rt.rdb)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.journal, err = buildJournal(cfg, rt.rdb, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.svc, err = badge.New(badge.Config{
		Owner:        owner,
		Gate:         eligibility.NewGate(oracle),
		Journal:      rt.journal,
		Metrics:      metrics,
		Logger:       logger,
		RecentEvents: cfg.EventBuffer,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	if err := rt.svc.Restore(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func buildOracle(cfg *config.Config, rdb *redis.Client) (eligibility.Oracle, error) {
	switch cfg.Eligibility.Backend {
	case config.EligibilityStatic:
		return eligibility.NewSetOracle(cfg.EligibleAccounts()...), nil
	case config.EligibilityFile:
		o, err := eligibility.NewFileOracle(cfg.Eligibility.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load eligibility file: %w", err)
		}
		return o, nil
	case config.EligibilityHTTP:
		return eligibility.NewHTTPOracle(cfg.Eligibility.URL), nil
	case config.EligibilityRedis:
		return eligibility.NewRedisOracle(rdb, cfg.Eligibility.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown eligibility backend %q", cfg.Eligibility.Backend)
	}
}

func buildJournal(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (journal.Journal, error) {
	switch cfg.Journal.Backend {
	case config.JournalMemory:
		return journal.NewMemory(), nil
	case config.JournalFile:
		j, err := journal.OpenFile(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		return j, nil
	case config.JournalBadger:
		j, err := journal.OpenBadger(cfg.Journal.Path, logger)
		if err != nil {
			return nil, err
		}
		return j, nil
	case config.JournalRedis:
		j, err := journal.NewRedis(rdb, cfg.Journal.Namespace)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}
}

// Close releases the journal and the redis connection.
func (rt *runtime) Close() error {
	var errs []error
	if rt.journal != nil {
		errs = append(errs, rt.journal.Close())
	}
	if rt.rdb != nil {
		errs = append(errs, rt.rdb.Close())
	}
	return errors.Join(errs...)
}
