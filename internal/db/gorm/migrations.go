package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: thoughts, sessions, notable moments
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Session{}, &Thought{}, &NotableMoment{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("notable_moments", "thoughts", "sessions")
			},
		},
	})

	return m.Migrate()
}
