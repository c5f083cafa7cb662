// persistence/gorm_postgresql.go
package persistence

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/boardserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	if err := seedAchievementCatalog(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.Move{},
		&models.CoinTransaction{},
		&models.WeeklyStats{},
		&models.WeeklyResetStatus{},
		&models.AchievementType{},
		&models.UserAchievement{},
		&models.Friendship{},
	)
}

// seedAchievementCatalog installs the default achievement catalog. The
// catalog is data: operators add rows, the settlement flow never changes.
func seedAchievementCatalog(db *gorm.DB) error {
	catalog := []models.AchievementType{
		{Name: "first_blood", Icon: "🥇", Rule: models.RuleFirstWin, Threshold: 1},
		{Name: "on_a_roll", Icon: "🔥", Rule: models.RuleWinStreak, Threshold: 3},
		{Name: "unstoppable", Icon: "⚡", Rule: models.RuleWinStreak, Threshold: 7},
		{Name: "veteran", Icon: "🎖️", Rule: models.RuleTotalGames, Threshold: 100},
		{Name: "champion", Icon: "🏆", Rule: models.RuleTotalWins, Threshold: 50},
		{Name: "diagonal_master", Icon: "📐", Rule: models.RuleDiagonalWins, Threshold: 3},
		{Name: "phoenix", Icon: "🔄", Rule: models.RuleComeback, Threshold: 5},
	}
	for _, a := range catalog {
		if err := db.Where(models.AchievementType{Name: a.Name}).
			FirstOrCreate(&a).Error; err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle for query-only callers.
func (p *GormPostgreSQL) DB() *gorm.DB {
	return p.db
}

// Transaction 事务支持
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

// AdvisoryLock blocks until the transaction-scoped advisory lock on key
// is held. Postgres releases it automatically at transaction end.
func (p *GormPostgreSQL) AdvisoryLock(tx *gorm.DB, key int64) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
