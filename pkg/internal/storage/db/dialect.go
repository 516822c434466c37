package db

import (
	"maps"
	"slices"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/storyvault/pkg/configs"
)

// dialects 按归一化后的类型选择驱动. sqlite 的实现随 cgo 切换.
var dialects = map[configs.DBType]func(dsn string) gorm.Dialector{
	configs.Postgres: postgres.Open,
	configs.MySQL:    mysql.Open,
	configs.SQLite:   openSQLite,
}

// Dialects 返回支持的方言，已排序.
func Dialects() []configs.DBType {
	return slices.Sorted(maps.Keys(dialects))
}

func dialector(cfg *configs.DBConfig) (gorm.Dialector, bool) {
	open, ok := dialects[cfg.Type.Dialect()]
	if !ok {
		return nil, false
	}

	return open(cfg.DSN()), true
}

func withParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}

	return dsn + "?" + param
}
