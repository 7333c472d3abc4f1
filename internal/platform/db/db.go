package db

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Username string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"DB_NAME"`
	// sqlite のみ
	Path string `yaml:"path" env:"DB_PATH"`
}

// Dialect は goqu のダイアレクト名を兼ねる
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite3"
)

// ForUpdate returns the row-lock suffix for a locking read.
// SQLite has no row locks; its single connection serializes transactions instead.
func (d Dialect) ForUpdate() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

func (d Dialect) Builder() goqu.DialectWrapper {
	return goqu.Dialect(string(d))
}

// DB は接続プールとダイアレクトの組
type DB struct {
	*sql.DB
	Dialect Dialect
	X       *sqlx.DB
}

func wrap(conn *sql.DB, d Dialect) *DB {
	return &DB{DB: conn, Dialect: d, X: sqlx.NewDb(conn, string(d))}
}

// TxOptions: MySQL は READ COMMITTED + FOR UPDATE、SQLite はデフォルト
func (d *DB) TxOptions() *sql.TxOptions {
	if d.Dialect == MySQL {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func Connect(c DatabaseConfig) (*DB, error) {
	switch strings.ToLower(c.Driver) {
	case "", DriverMySQL:
		return connectMySQL(c)
	case DriverSQLite:
		return OpenSQLite(c.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", c.Driver)
	}
}

func connectMySQL(c DatabaseConfig) (*DB, error) {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 3 * time.Second
	mc.ReadTimeout = 5 * time.Second
	mc.WriteTimeout = 5 * time.Second

	conn, err := sql.Open(DriverMySQL, mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	conn.SetMaxOpenConns(40)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return wrap(conn, MySQL), nil
}

// OpenSQLite opens a file-backed SQLite database (local development and tests).
func OpenSQLite(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
	conn, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	return wrap(conn, SQLite), nil
}
