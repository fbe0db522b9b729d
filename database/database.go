package database

import (
	"errors"
	"fmt"
	"log/slog"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/MeowSalty/relay/database/types"
)

// Options 数据库连接选项
type Options struct {
	Type      string // 数据库类型 ("sqlite", "mysql", "postgres")
	Host      string // 数据库主机地址
	Port      string // 数据库端口
	User      string // 数据库用户名
	Password  string // 数据库密码
	Name      string // 数据库名称（SQLite 时为文件名，空则使用 relay.db）
	SSLMode   string // PostgreSQL SSL 模式
	TLSConfig string // MySQL TLS 配置
}

// Connect 连接到数据库
//
// 该函数根据提供的连接选项连接到数据库，配置 slog-gorm 日志记录器，
// 并自动迁移表结构。
//
// 参数：
//   - opts: 数据库连接选项
//   - logger: 用于数据库操作的日志记录器
//
// 返回值：
//   - *gorm.DB: GORM 数据库连接对象
//   - error: 连接过程中可能发生的错误
func Connect(opts Options, logger *slog.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	gormConfig := &gorm.Config{
		Logger: slogGorm.New(
			slogGorm.WithHandler(logger.Handler()),
		),
	}

	switch opts.Type {
	case "mysql":
		if opts.Host == "" || opts.Port == "" || opts.User == "" || opts.Password == "" || opts.Name == "" {
			return nil, errors.New("使用 MySQL 数据库需要提供主机、端口、用户名、密码和数据库名")
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			opts.User, opts.Password, opts.Host, opts.Port, opts.Name)
		if opts.TLSConfig != "" {
			dsn += "&tls=" + opts.TLSConfig
		}
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "postgres":
		if opts.Host == "" || opts.Port == "" || opts.User == "" || opts.Password == "" || opts.Name == "" {
			return nil, errors.New("使用 PostgreSQL 数据库需要提供主机、端口、用户名、密码和数据库名")
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s",
			opts.Host, opts.User, opts.Password, opts.Name, opts.Port)
		if opts.SSLMode != "" {
			dsn += " sslmode=" + opts.SSLMode
		}
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		fallthrough
	default:
		name := opts.Name
		if name == "" {
			name = "relay.db"
		}
		db, err = gorm.Open(sqlite.Open(name), gormConfig)
	}

	if err != nil {
		return nil, errors.New("无法打开数据库：" + err.Error())
	}

	if err := autoMigrate(db); err != nil {
		return nil, errors.New("无法自动迁移数据库：" + err.Error())
	}

	return db, nil
}

// autoMigrate 自动迁移数据库表结构
//
// 该函数负责自动创建或更新数据库表结构以匹配当前的数据模型。
//
// 参数：
//   - db: GORM 数据库连接对象
//
// 返回值：
//   - error: 迁移过程中可能发生的错误
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		types.Types...,
	)
}
