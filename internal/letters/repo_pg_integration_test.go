//go:build integration

package letters

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"letters-backend/internal/documents"
	"letters-backend/internal/shared/storage/db"
)

func TestServiceAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("letters"),
		tcpostgres.WithUsername("letters"),
		tcpostgres.WithPassword("letters"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	database, err := db.Connect(ctx, dsn, db.Defaults(db.ProfileMigrate))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(ctx, database))

	f := newFixture(t)
	repo := &PGRepo{DB: database}
	f.svc.Repo = repo
	f.svc.Documents.Repo = &documents.PGRepo{DB: database}

	batch, err := f.svc.Create(ctx, CreateInput{ConfigID: "christmas", CreatedBy: "op-1"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateInput{ConfigID: "christmas"})
	assert.ErrorIs(t, err, ErrImportAlreadyOpen, "partial unique index rejects a second open batch")

	for _, c := range []string{"letter-a", "blank-page", "letter-b"} {
		_, err := f.svc.AddDocument(ctx, batch.ID, c+".pdf", strings.NewReader(c))
		require.NoError(t, err)
	}

	summary, err := f.svc.RunImport(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.LinesCreated)

	stored, err := repo.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, stored.State, "state column refreshed inside the transaction")
	assert.NotNil(t, stored.CompletedAt)

	lines, err := repo.ListLines(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "letter-a.pdf", lines[0].FileName)

	created, err := f.svc.Save(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	stored, err = repo.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, stored.State)

	_, err = f.svc.Create(ctx, CreateInput{ConfigID: "christmas"})
	require.NoError(t, err, "done batch frees the config")
}
