package game

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/wfunc/boardserver/timer"
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

func TestSweepObserverFiresPerPass(t *testing.T) {
	db, mock := openMockDB(t)
	manager := NewManager(db, nil, nil)
	timers := timer.NewManager()
	defer timers.Stop()

	sweeper := NewSweeper(manager, db, timers, time.Minute, time.Minute)

	var observed []time.Duration
	sweeper.OnSweep = func(d time.Duration) { observed = append(observed, d) }

	mock.ExpectQuery(`SELECT (.+) FROM "games"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sweeper.sweepOnce()

	require.Len(t, observed, 1)
	assert.GreaterOrEqual(t, observed[0], time.Duration(0))
	assert.NoError(t, mock.ExpectationsWereMet())
}
