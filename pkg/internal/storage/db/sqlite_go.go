//go:build !cgo

package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// openSQLite 使用纯 Go 的 modernc 驱动，pragma 写法与 cgo 版本不同.
func openSQLite(dsn string) gorm.Dialector {
	return sqlite.Open(withParam(dsn, "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"))
}
