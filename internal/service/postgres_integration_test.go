//go:build integration

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/database"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// newPostgres starts a disposable Postgres with the schema applied.
func newPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("blooddrive"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Connect("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db, zaptest.NewLogger(t)))
	return db
}

func TestPostgres_ConcurrentEnrollNeverOverbooks(t *testing.T) {
	const (
		donors = 40
		seats  = 7
	)
	ctx := context.Background()
	db := newPostgres(t)
	store := repository.NewPostgresStore(db)
	users := repository.NewUserRepository(db)

	opts := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(zaptest.NewLogger(t)),
	}
	campaigns := NewCampaignService(store, opts...)
	enrollments := NewEnrollmentService(store, opts...)
	questionnaires := NewQuestionnaireService(store, opts...)

	require.NoError(t, users.EnsureUser(ctx, organizerID, model.RoleOrganizer))
	c, err := campaigns.Create(ctx, organizerID, campaignInput("hall-a", "09:00", "12:00", seats))
	require.NoError(t, err)

	ids := make([]string, donors)
	for i := range ids {
		ids[i] = fmt.Sprintf("donor-%02d", i)
		require.NoError(t, users.EnsureUser(ctx, ids[i], model.RoleDonor))
		_, err := questionnaires.Submit(ctx, ids[i], healthyInput)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[model.EnrollmentStatus]int{}
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := enrollments.Enroll(ctx, id, c.ID, Preferences{})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			statuses[e.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, seats, statuses[model.EnrollmentPending])
	require.Equal(t, donors-seats, statuses[model.EnrollmentWaitlist])

	report, err := campaigns.ReconcileSeats(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, seats, report.Counter)
	require.Zero(t, report.Drift)
}

func TestPostgres_DuplicateEnrollmentRejectedByIndex(t *testing.T) {
	ctx := context.Background()
	db := newPostgres(t)
	store := repository.NewPostgresStore(db)
	users := repository.NewUserRepository(db)

	opts := []Option{WithClock(func() time.Time { return fixedNow })}
	campaigns := NewCampaignService(store, opts...)
	enrollments := NewEnrollmentService(store, opts...)
	questionnaires := NewQuestionnaireService(store, opts...)

	require.NoError(t, users.EnsureUser(ctx, organizerID, model.RoleOrganizer))
	require.NoError(t, users.EnsureUser(ctx, donorID, model.RoleDonor))
	c, err := campaigns.Create(ctx, organizerID, campaignInput("hall-a", "09:00", "12:00", 3))
	require.NoError(t, err)
	_, err = questionnaires.Submit(ctx, donorID, healthyInput)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = enrollments.Enroll(ctx, donorID, c.ID, Preferences{})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)

	report, err := campaigns.ReconcileSeats(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, report.Counter)
	require.Zero(t, report.Drift)
}

func TestPostgres_ConcurrentCreateSameSlot(t *testing.T) {
	ctx := context.Background()
	db := newPostgres(t)
	store := repository.NewPostgresStore(db)
	users := repository.NewUserRepository(db)
	campaigns := NewCampaignService(store, WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, users.EnsureUser(ctx, organizerID, model.RoleOrganizer))

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = campaigns.Create(ctx, organizerID, campaignInput("hall-a", "09:00", "12:00", 5))
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrScheduleConflict)
	}
	require.Equal(t, 1, created)
}
