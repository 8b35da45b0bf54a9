package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	_ = godotenv.Load()
}

// mysqlDSN reads DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME. A DB_HOST
// of the form /cloudsql/<connection> is dialled as a unix socket.
func mysqlDSN() string {
	host := os.Getenv("DB_HOST")
	addr := fmt.Sprintf("tcp(%s:%s)", host, os.Getenv("DB_PORT"))
	if strings.HasPrefix(host, "/cloudsql/") {
		addr = fmt.Sprintf("unix(%s)", host)
	}
	return fmt.Sprintf("%s:%s@%s/%s?multiStatements=true&parseTime=true&charset=utf8mb4",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), addr, os.Getenv("DB_NAME"))
}

// ConnectDatabase opens the MySQL handle, retrying until ctx ends. The pool
// allows two connections per chunk worker.
func ConnectDatabase(ctx context.Context) error {
	dsn := mysqlDSN()
	workers := LoadTunables().Workers
	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(dsn), GormConfig())
		if err == nil {
			if sqlDB, err := conn.DB(); err == nil {
				sqlDB.SetMaxOpenConns(2*workers + 4)
				sqlDB.SetMaxIdleConns(workers + 2)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}
			InstallPlugins(conn)
			db = conn
			logg.WithFields(logrus.Fields{"field": "database", "attempt": attempt}).Info("connected")
			return nil
		}
		if err := waitRetry(ctx, "database", attempt, err); err != nil {
			return err
		}
	}
}

// waitRetry logs a failed connection attempt and backs off, doubling up to 30s.
func waitRetry(ctx context.Context, what string, attempt int, cause error) error {
	sleep := min(time.Second<<min(attempt, 5), 30*time.Second)
	logg.WithFields(logrus.Fields{"field": what, "attempt": attempt, "retry_in": sleep.String()}).Warn(cause)
	select {
	case <-ctx.Done():
		return fmt.Errorf("connect %s: %w", what, ctx.Err())
	case <-time.After(sleep):
		return nil
	}
}

// InstallPlugins registers tracing and property scoping on a freshly opened handle.
func InstallPlugins(conn *gorm.DB) {
	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		LogError(logg, "config", "InstallPlugins", "otelgorm", nil, err)
	}
	if err := conn.Use(NewPropertyScopePlugin()); err != nil {
		LogError(logg, "config", "InstallPlugins", "property scope", nil, err)
	}
}

// GormConfig is shared by the MySQL connection and the sqlite handles used in tests.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		}),
		NamingStrategy: schema.NamingStrategy{},
		TranslateError: true,
	}
}
