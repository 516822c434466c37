//go:build cgo

package db

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openSQLite 使用 mattn/go-sqlite3. worker 与 HTTP 进程并发写同一个文件，需要等待锁而不是立即失败.
func openSQLite(dsn string) gorm.Dialector {
	return sqlite.Open(withParam(dsn, "_busy_timeout=5000&_foreign_keys=on"))
}
