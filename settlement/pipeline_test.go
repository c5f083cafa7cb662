package settlement

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/config"
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

func TestSettleSecondInvocationRejected(t *testing.T) {
	db, mock := openMockDB(t)
	p := NewPipeline(db, nil, nil, nil, config.GameConfig{OnlineReward: 25})

	// The guard reads the locked row already terminal: no status write,
	// no stats, no currency, rollback.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "games" (.+) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "player_x_id", "player_o_id", "mode"}).
			AddRow("g1", "finished", 100, 200, "free"))
	mock.ExpectRollback()

	res, err := p.Settle(context.Background(), "g1", Win(100, board.CondRow4, []int{1, 2, 3, 4}))
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.Nil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleUnknownGame(t *testing.T) {
	db, mock := openMockDB(t)
	p := NewPipeline(db, nil, nil, nil, config.GameConfig{})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "games" (.+) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	res, err := p.Settle(context.Background(), "missing", Draw())
	assert.ErrorIs(t, err, ErrGameNotFound)
	assert.Nil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}
