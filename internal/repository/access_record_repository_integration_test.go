//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/persistence"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("gym"),
		postgrescontainer.WithUsername("gym"),
		postgrescontainer.WithPassword("gym"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			return false
		}
		return true
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()))
	return pool
}

func TestPostgresAccessLog(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewAccessRecordRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Append(ctx, record("S1", "pg-nonce", now, domain.AccessGranted, "")))
	assert.ErrorIs(t, repo.Append(ctx, record("S1", "pg-nonce", now, domain.AccessGranted, "")), ErrAlreadyGranted)
	require.NoError(t, repo.Append(ctx, record("S1", "pg-nonce", now, domain.AccessDenied, domain.ReasonCodeAlreadyUsed)))
	require.NoError(t, repo.Append(ctx, record("", "", now, domain.AccessDenied, domain.ReasonInvalidCode)))

	has, err := repo.HasGrant(ctx, "pg-nonce")
	require.NoError(t, err)
	assert.True(t, has)

	recent, err := repo.ListRecent(ctx, RecordFilter{SubjectID: "S1"})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	stats, err := repo.Stats(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Granted)

	pruned, err := repo.PruneBefore(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)
}

func TestPostgresAccessLogConcurrentGrants(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewAccessRecordRepository(pool)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Append(ctx, record("S3", "race", time.Now().UTC(), domain.AccessGranted, ""))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrAlreadyGranted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestPostgresMembershipOracle(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	member := &domain.Member{Name: "Ana", Email: "ana@example.com", PasswordHash: "x"}
	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Microsecond)
	require.NoError(t, NewMemberRepository(pool).Create(ctx, member, &domain.Membership{
		Status:    domain.MembershipActive,
		ExpiresAt: expires,
		PlanPrice: 29.9,
	}))

	oracle := NewMembershipOracle(pool)
	report, err := oracle.GetStatus(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, report.Member.ID)
	assert.Equal(t, domain.MembershipActive, report.Membership.Status)
	assert.True(t, report.Membership.ExpiresAt.Equal(expires))

	_, err = oracle.GetStatus(ctx, "11111111-2222-3333-4444-555555555555")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	_, err = oracle.GetStatus(ctx, "S1")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}
