package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"admate-rag-go/pkg/log"
)

// OpenPostgres 打开 Postgres 连接，供 pgvector 后端使用
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := configurePool(db); err != nil {
		return nil, err
	}
	log.Info("Postgres database connected successfully")
	return db, nil
}
