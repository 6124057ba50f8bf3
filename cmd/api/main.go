package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"caseflow/agreement"
	"caseflow/complaint"
	"caseflow/config"
	"caseflow/db"
	"caseflow/eventlog"
	"caseflow/grievance"
	"caseflow/identity"
	"caseflow/migrations"
	"caseflow/search"
	"caseflow/sequence"
	"caseflow/steptemplate"
	"caseflow/tracing"
	"caseflow/users"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "api",
		Short:         "Grievance case workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.Logger()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.OpenTelemetry.Enabled,
		Endpoint:    cfg.OpenTelemetry.Endpoint,
		ServiceName: cfg.OpenTelemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("tracing shutdown")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	var indexer search.Indexer = search.Noop{}
	if cfg.Search.RedisURL != "" {
		redisIndexer, err := search.Dial(cfg.Search.RedisURL, cfg.Search.QueueKey)
		if err != nil {
			return err
		}
		defer redisIndexer.Close()
		indexer = redisIndexer
	}
	notifier := search.NewNotifier(indexer, cfg.Search.ReindexTimeout, log)
	defer notifier.Wait()

	server := newServer(pool, cfg, notifier, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newServer(pool *pgxpool.Pool, cfg *config.Configuration, notifier *search.Notifier, log logrus.FieldLogger) *Server {
	templates := steptemplate.NewResolver(log)
	events := eventlog.New()
	userRepo := users.NewRepository()

	engine := grievance.NewEngine(pool, grievance.Deps{
		Templates: templates,
		Events:    events,
		Users:     userRepo,
		Notifier:  notifier,
		Log:       log,
	})

	return &Server{
		cases:       engine,
		lister:      grievance.NewLister(pool, events, cfg.PageSize, cfg.MaxPageSize),
		complaints:  complaint.NewService(pool, nil, nil),
		elevator:    complaint.NewCoordinator(pool, nil, engine, events, notifier, log),
		sequences:   sequence.NewAllocator(pool),
		agreements:  agreement.NewService(pool, agreement.NewRepository(), templates),
		verifier:    identity.NewVerifier(cfg.JWTSecret),
		userLoader:  func() *users.Loader { return users.NewLoader(pool, userRepo) },
		health:      pool.Ping,
		metricsPath: cfg.PrometheusPath,
		log:         log.WithField("module", "api"),
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	run := func(fn func(ctx context.Context, pool *pgxpool.Pool, out *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), cfg.Database.URL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()
			return fn(cmd.Context(), pool, cmd)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: run(func(ctx context.Context, pool *pgxpool.Pool, out *cobra.Command) error {
				applied, err := migrations.Up(ctx, pool)
				if err != nil {
					return err
				}
				fmt.Fprintf(out.OutOrStdout(), "applied %d migration(s) %v\n", len(applied), applied)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: run(func(ctx context.Context, pool *pgxpool.Pool, out *cobra.Command) error {
				v, err := migrations.Down(ctx, pool)
				if err != nil {
					return err
				}
				fmt.Fprintf(out.OutOrStdout(), "rolled back version %d\n", v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: run(func(ctx context.Context, pool *pgxpool.Pool, out *cobra.Command) error {
				statuses, err := migrations.List(ctx, pool)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(out.OutOrStdout(), "%05d %-8s %s\n", s.Version, state, s.Path)
				}
				return nil
			}),
		},
	)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID, orgID string
		ttl           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := identity.NewIssuer(cfg.JWTSecret, ttl).Issue(identity.Actor{UserID: userID, OrganizationID: orgID})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (sub claim)")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (org claim)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
