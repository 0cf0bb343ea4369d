package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"grindolympiads/internal/app"
	"grindolympiads/internal/config"
	"grindolympiads/internal/domain"
	"grindolympiads/internal/infra/memory"
	"grindolympiads/internal/infra/postgres"
	redisstore "grindolympiads/internal/infra/redis"
	"grindolympiads/internal/infra/sqlite"
	"grindolympiads/internal/logging"
	"grindolympiads/internal/navigation"
	transport "grindolympiads/internal/transport/http"
)

// repositories is satisfied by both the memory and the Postgres stores.
type repositories interface {
	app.ExamRepository
	app.ChallengeRepository
	app.RunRepository
	app.ActionRepository
	app.UserRepository
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the challenge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cmd.ErrOrStderr(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides config)")
	return cmd
}

func runServer(ctx context.Context, logOut io.Writer, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(logOut, cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	repos, closeRepos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepos()

	states, closeStates, err := openStateStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStates()

	builder := app.NewDetailsBuilder(repos, repos)
	challengeTTL := config.TTLDuration(cfg.Challenge.TTL, 10*time.Minute)
	var details app.ChallengeDetailsRepository
	if redisClient != nil {
		details = redisstore.NewDetailsCache(redisClient, builder, challengeTTL)
	} else {
		details = memory.NewDetailsCache(builder, challengeTTL)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	challenges := app.NewChallengeService(repos, repos, repos, repos, details)
	admin := app.NewAdminService(repos, repos, repos, repos, repos, loc)

	api := transport.NewServer(challenges, admin, repos, states, transport.NavigationSettings{
		Preferences: navigation.Preferences{
			PauseAfterSubmission: cfg.Navigation.PauseAfterSubmission,
			AutoAdvance:          cfg.Navigation.AutoAdvance,
		},
		TickInterval: config.TTLDuration(cfg.Navigation.TickInterval, time.Second),
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     api.Routes(),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("state_store", cfg.Navigation.StateStore).Msg("starting challenge server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openRepositories returns the Postgres store when configured, otherwise a memory
// store seeded with demo content.
func openRepositories(ctx context.Context, cfg config.Config) (repositories, func(), error) {
	if cfg.Postgres.URL == "" {
		store := memory.NewStore()
		if err := seedDemo(ctx, store); err != nil {
			return nil, nil, err
		}
		log.Warn().Msg("postgres not configured; using in-memory store with demo data")
		return store, func() {}, nil
	}

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func openStateStore(ctx context.Context, cfg config.Config, client *redis.Client) (navigation.StateStore, func(), error) {
	switch cfg.Navigation.StateStore {
	case config.StateStoreRedis:
		ttl := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		return redisstore.NewStateStore(client, ttl), func() {}, nil
	case config.StateStoreSQLite:
		store, err := sqlite.Open(cfg.Navigation.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if n, err := store.CountIncomplete(ctx); err != nil {
			log.Warn().Err(err).Msg("count saved navigation sessions")
		} else {
			log.Info().Int("in_progress", n).Str("path", cfg.Navigation.SQLitePath).Msg("sqlite state store opened")
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return memory.NewStateStore(), func() {}, nil
	}
}

// seedDemo loads a small exam and two users so a fresh in-memory server is usable.
func seedDemo(ctx context.Context, store *memory.Store) error {
	exam := domain.Exam{ID: "demo-amc10", Name: "Demo AMC 10", Competition: "AMC 10", Year: 2024}
	statements := []string{
		"What is 2 + 2?",
		"How many primes are less than 20?",
		"What is the sum of the interior angles of a hexagon, in degrees?",
		"What is the remainder when 2^10 is divided by 7?",
		"How many diagonals does a convex octagon have?",
		"What is the least common multiple of 12 and 18?",
		"How many positive divisors does 36 have?",
		"What is 15% of 240?",
		"How many ways can 3 books be arranged on a shelf?",
		"What is the area of a right triangle with legs 6 and 8?",
		"What is the units digit of 7^2024?",
		"What is the largest prime factor of 221?",
	}
	for i, s := range statements {
		exam.Problems = append(exam.Problems, domain.Problem{
			Label:     fmt.Sprint(i + 1),
			Statement: s,
			Choices:   []string{"A", "B", "C", "D", "E"},
		})
	}
	if err := store.SaveExam(ctx, exam); err != nil {
		return err
	}
	if err := store.SaveUser(ctx, domain.User{ID: "demo-admin", Name: "Demo Admin", IsAdmin: true, CreatedAt: time.Now()}); err != nil {
		return err
	}
	return store.SaveUser(ctx, domain.User{ID: "demo-student", Name: "Demo Student", CreatedAt: time.Now()})
}
