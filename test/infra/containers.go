package infra

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// DSNEnv names the variable that points the suite at an existing database
// instead of a container.
const DSNEnv = "CASEFLOW_STRESS_DSN"

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 returns a DSN for the suite. overrideDSN, then DSNEnv, then
// DATABASE_URL are reused when set; otherwise a postgres:16 container is
// started. shared reports whether the database outlives the run.
func StartPostgres16(ctx context.Context, overrideDSN string) (pg *PGContainer, dsn string, shared bool, err error) {
	for _, candidate := range []string{overrideDSN, os.Getenv(DSNEnv), os.Getenv("DATABASE_URL")} {
		if candidate != "" {
			return &PGContainer{}, candidate, true, nil
		}
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("caseflow"),
		postgres.WithUsername("caseflow"),
		postgres.WithPassword("caseflow"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", false, err
	}

	dsn, err = pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", false, err
	}
	return &PGContainer{C: pgC}, dsn, false, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}

// DockerAvailable reports whether a container runtime answers.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
