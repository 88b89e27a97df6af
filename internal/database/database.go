// Package database opens the Postgres task store.
package database

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	activityrepo "github.com/prism/prism/internal/activitylog/repositoryimpl"
	agentrepo "github.com/prism/prism/internal/agent/repositoryimpl"
	projectrepo "github.com/prism/prism/internal/project/repositoryimpl"
	taskrepo "github.com/prism/prism/internal/task/repositoryimpl"
)

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         NewLogger(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := Migrate(db.WithContext(ctx)); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&taskrepo.TaskModel{},
		&activityrepo.ActivityModel{},
		&projectrepo.ProjectModel{},
		&agentrepo.AgentModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
