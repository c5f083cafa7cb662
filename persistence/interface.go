// persistence/interface.go
package persistence

import (
	"fmt"

	"gorm.io/gorm"
)

// Database 数据库接口
type Database interface {
	DB() *gorm.DB
	Transaction(fn func(tx *gorm.DB) error) error
	// AdvisoryLock takes a transaction-scoped advisory lock on key.
	// The lock is released when the surrounding transaction ends, commit
	// or rollback alike, so crashed holders never leak it.
	AdvisoryLock(tx *gorm.DB, key int64) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
