package weekly

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// mockDB backs the persistence interface with a scripted sql connection.
type mockDB struct {
	gdb *gorm.DB
}

func (d *mockDB) DB() *gorm.DB { return d.gdb }

func (d *mockDB) Transaction(fn func(tx *gorm.DB) error) error {
	return d.gdb.Transaction(fn)
}

func (d *mockDB) AdvisoryLock(tx *gorm.DB, key int64) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error
}

func (d *mockDB) Close() error { return nil }

func openMockDB(t *testing.T) (*mockDB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	require.NoError(t, err)
	return &mockDB{gdb: gdb}, mock
}

// expectCompletedRun scripts the short path of a rollover whose payouts
// already happened: lock, read the rewarded rows, commit without writes.
func expectCompletedRun(mock sqlmock.Sqlmock, week, year int) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM "weekly_stats"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "week", "year", "final_rank", "reward_received"}).
			AddRow(1, 9, week, year, 1, true).
			AddRow(2, 3, week, year, 2, true))
	mock.ExpectCommit()
}

func TestDistributeRewardsSecondInvocation(t *testing.T) {
	db, mock := openMockDB(t)
	store := NewStore(db, Config{Tiers: testTiers()})

	expectCompletedRun(mock, 30, 2026)

	results, err := store.DistributeRewards(context.Background(), 30, 2026)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The rebuilt rows carry the same ranks and amounts the original run
	// paid out, not just the user ids.
	assert.Equal(t, RewardResult{UserID: 9, Rank: 1, Amount: 500}, results[0])
	assert.Equal(t, RewardResult{UserID: 3, Rank: 2, Amount: 300}, results[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryFailedResumesStrandedRollover(t *testing.T) {
	db, mock := openMockDB(t)
	store := NewStore(db, Config{Tiers: testTiers(), MaxRetries: 5})

	retries := 0
	store.OnRetry = func() { retries++ }

	mock.ExpectQuery(`SELECT (.+) FROM "weekly_reset_statuses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "week", "year", "status", "retry_count"}).
			AddRow(1, 30, 2026, "failed", 1))
	expectCompletedRun(mock, 30, 2026)

	store.RetryFailed(context.Background())

	assert.Equal(t, 1, retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryFailedSkipsExhaustedRollover(t *testing.T) {
	db, mock := openMockDB(t)
	store := NewStore(db, Config{Tiers: testTiers(), MaxRetries: 3})

	retries := 0
	store.OnRetry = func() { retries++ }

	mock.ExpectQuery(`SELECT (.+) FROM "weekly_reset_statuses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "week", "year", "status", "retry_count"}).
			AddRow(1, 30, 2026, "failed", 3))

	store.RetryFailed(context.Background())

	assert.Equal(t, 0, retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
