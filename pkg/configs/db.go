package configs

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// DBType 文档存储类型，同一方言可以有多个别名.
type DBType string

const (
	PostgreSQL DBType = "postgresql"
	Postgres   DBType = "postgres"
	Pg         DBType = "pg"
	MySQL      DBType = "mysql"
	MariaDB    DBType = "mariadb"
	SQLite     DBType = "sqlite"
)

// Dialect 归一化别名：postgres、mysql 或 sqlite，未知类型返回空串.
func (t DBType) Dialect() DBType {
	switch t {
	case PostgreSQL, Postgres, Pg:
		return Postgres
	case MySQL, MariaDB:
		return MySQL
	case SQLite:
		return SQLite
	default:
		return ""
	}
}

// DBConfig 文档存储配置，保存表单模板与表单记录.
type DBConfig struct {
	Type     DBType `mapstructure:"type"     rule:"oneof=postgresql postgres pg mysql mariadb sqlite"`
	URL      string `mapstructure:"url"` // 完整连接串，非空时忽略分项配置
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"     rule:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" rule:"required"` // sqlite 下为文件名（不含 .db），:memory: 为内存库
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"    rule:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    rule:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"` // 超过该耗时的 SQL 以 warn 记录

	AutoMigrate bool `mapstructure:"auto_migrate"` // 启动时迁移 form_templates 与 form_data 表
}

// DSN 返回驱动连接串.
func (c *DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	switch c.Type.Dialect() {
	case Postgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	case MySQL:
		addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC", c.User, c.Password, addr, c.Database)
	case SQLite:
		if c.Database == ":memory:" {
			return "file::memory:?cache=shared"
		}

		return "file:" + c.Database + ".db"
	default:
		return ""
	}
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", SQLite)
	v.SetDefault("db.url", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "storyvault")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", "storyvault")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 0)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.slow_query", "500ms")
	v.SetDefault("db.auto_migrate", true)
}
