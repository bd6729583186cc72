// Package gormstore implements domain.Repository on gorm, targeting MySQL in
// production. Any gorm dialector works; tests run it on SQLite.
package gormstore

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config describes a MySQL connection.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Database   string
	LogQueries bool
}

// DSN renders the go-sql-driver connection string for cfg.
func (cfg Config) DSN() string {
	dbConfig := mysql.Config{
		User:                 cfg.Username,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		AllowNativePasswords: true,
		ParseTime:            true,
		Loc:                  time.UTC,
		// Report matched rows so an update that changes nothing is not
		// mistaken for a missing row.
		ClientFoundRows: true,
	}
	return dbConfig.FormatDSN()
}

// GormConfig returns the gorm settings shared by every dialector.
func GormConfig(logQueries bool) *gorm.Config {
	level := logger.Silent
	if logQueries {
		level = logger.Info
	}
	return &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}
}

// Connect opens a MySQL database and migrates the schema.
func Connect(cfg Config) (*Store, error) {
	db, err := gorm.Open(gormMysql.Open(cfg.DSN()), GormConfig(cfg.LogQueries))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	return New(db)
}

// New migrates the schema on db and returns a Store over it.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(entities...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// doInTransaction runs operations in order inside one database transaction,
// rolling back on the first error or panic.
func doInTransaction(db *gorm.DB, operations ...func(tx *gorm.DB) error) (err error) {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	for _, f := range operations {
		if err := f(tx); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}
