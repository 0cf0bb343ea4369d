package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"grindolympiads/internal/app"
	"grindolympiads/internal/domain"
	"grindolympiads/internal/infra/postgres"
	pgmigrations "grindolympiads/internal/infra/postgres/migrations"
	infraredis "grindolympiads/internal/infra/redis"
	"grindolympiads/internal/navigation"
)

func TestChallengeRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)
	seed(t, ctx, store)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	details := infraredis.NewDetailsCache(redisClient, app.NewDetailsBuilder(store, store), 5*time.Minute)
	states := infraredis.NewStateStore(redisClient, time.Hour)
	challenges := app.NewChallengeService(store, store, store, store, details)
	admin := app.NewAdminService(store, store, store, store, store, time.UTC)

	alice := domain.Session{UserID: "alice"}
	run, err := challenges.StartChallenge(ctx, alice, "amc10a-2023", domain.ChallengeFirstTen)
	if err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	got, err := challenges.GetChallengeDetails(ctx, run.Challenge.ID)
	if err != nil {
		t.Fatalf("challenge details: %v", err)
	}
	if len(got.Problems) != 10 || got.Problems[9].Label != "10" {
		t.Fatalf("unexpected details: %+v", got.Problems)
	}

	nav := navigation.New(navigation.Config{
		RunID:        run.ID,
		UserID:       alice.UserID,
		Labels:       run.Challenge.Labels(),
		StartedAt:    run.StartedAt,
		TickInterval: time.Hour,
	}, states, challenges.NavigationBackend(alice))
	if err := nav.Open(ctx); err != nil {
		t.Fatalf("open navigator: %v", err)
	}
	if err := nav.HandleAnswer(ctx, "B"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := nav.HandleSkip(ctx); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if err := nav.NavigateToProblem(ctx, 10); err != nil {
		t.Fatalf("finish: %v", err)
	}
	nav.Close()
	nav.Wait()

	stored, err := challenges.GetRun(ctx, alice, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !stored.Completed() {
		t.Fatalf("expected run completed")
	}
	if len(stored.Responses["1"]) != 1 || stored.Responses["1"][0].Answer != "B" {
		t.Fatalf("unexpected responses: %+v", stored.Responses)
	}
	local := nav.State().Actions
	if len(stored.Actions) != len(local) {
		t.Fatalf("backend has %d actions, navigator %d", len(stored.Actions), len(local))
	}

	if _, err := states.Load(ctx, run.ID); !errors.Is(err, domain.ErrStateNotFound) {
		t.Fatalf("expected saved state dropped after completion, got %v", err)
	}

	result, err := admin.FetchActions(ctx, domain.Session{UserID: "root"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("admin fetch: %v", err)
	}
	if len(result.ChallengeRuns) != 1 || result.ChallengeRuns[0].ID != run.ID {
		t.Fatalf("unexpected admin runs: %+v", result.ChallengeRuns)
	}
	if len(result.Actions) != len(stored.Actions) {
		t.Fatalf("expected whole run in admin result, got %d of %d", len(result.Actions), len(stored.Actions))
	}
	if result.Actions[0].ChallengeName != "First Ten Challenge for AMC 10A 2023" {
		t.Fatalf("unexpected challenge name %q", result.Actions[0].ChallengeName)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "grind", "POSTGRES_PASSWORD": "grindpass", "POSTGRES_DB": "grinddb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://grind:grindpass@%s:%s/grinddb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seed(t *testing.T, ctx context.Context, store *postgres.Store) {
	t.Helper()
	exam := domain.Exam{ID: "amc10a-2023", Name: "AMC 10A 2023", Competition: "AMC 10", Year: 2023}
	for i := 1; i <= 25; i++ {
		exam.Problems = append(exam.Problems, domain.Problem{
			Label:     fmt.Sprint(i),
			Statement: fmt.Sprintf("Problem %d", i),
			Choices:   []string{"A", "B", "C", "D", "E"},
		})
	}
	if err := store.SaveExam(ctx, exam); err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	for _, u := range []domain.User{{ID: "alice", Name: "Alice"}, {ID: "root", Name: "Root", IsAdmin: true}} {
		if err := store.SaveUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
