package data

import (
	"context"
	"testing"
	"time"

	"github.com/radlabel/radlabel/pkg/label"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestPostgresBackend drives the whole store against a real Postgres
// to catch placeholder and upsert dialect drift. Skipped when no
// container runtime is available.
func TestPostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("radlabel"),
		postgres.WithUsername("radlabel"),
		postgres.WithPassword("radlabel"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Init(dsn))
	require.NoError(t, Init(dsn)) // idempotent on postgres too

	db, err := GetDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.True(t, isPostgres(db))

	abnormal := GoldAbnormal
	reports := []*Report{
		{DocID: "pg-001", Split: SplitDev, Gold: &abnormal, XrayPaths: []string{"a.jpg"}, Text: "Effusion."},
		{DocID: "pg-002", Split: SplitDev, XrayPaths: []string{"b.jpg"}, Text: "Clear."},
	}
	n, err := SaveReports(db, reports)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// upsert path
	reports[0].Text = "Resolved effusion."
	_, err = SaveReports(db, reports[:1])
	require.NoError(t, err)

	got, err := GetReport(db, "pg-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Resolved effusion.", got.Text)

	run, err := CreateRun(db, SplitDev, []string{"lf_a"})
	require.NoError(t, err)

	m := label.NewMatrix([]string{"pg-001", "pg-002"}, []string{"lf_a"})
	m.Set(0, 0, label.Abnormal)
	votes, err := SaveVotes(db, run.ID, m)
	require.NoError(t, err)
	require.NoError(t, CompleteRun(db, run.ID, len(m.Docs), votes))

	loaded, err := LoadMatrix(db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Cells, loaded.Cells)

	summary, err := GetLFSummary(db, run.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"lf_a"}, summary.LFs)
	assert.InDelta(t, 0.5, summary.Coverage[0], 1e-9)

	_, err = SaveProbLabels(db, label.MethodMajority, &run.ID,
		[]*label.ProbLabel{{DocID: "pg-001", PAbnormal: 0.9, Label: label.Abnormal}})
	require.NoError(t, err)

	probs, err := GetProbLabels(db, label.MethodMajority, nil)
	require.NoError(t, err)
	require.Len(t, probs, 1)
	require.NotNil(t, probs[0].Gold)
	assert.Equal(t, GoldAbnormal, *probs[0].Gold)

	require.NoError(t, SaveState(db, "last_fetch", "", "2026-08-01T00:00:00Z"))
	v, err := GetState(db, "last_fetch", "")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "2026-08-01T00:00:00Z", *v)

	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state["reports"])
}
