package db

import (
	"fmt"

	"github.com/zulandar/matinee/internal/config"
	"github.com/zulandar/matinee/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.DiscordLink{},
		&models.ChatSession{},
		&models.MediaMark{},
		&models.CommandAudit{},
		&models.PlexServer{},
		&models.ArrService{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedServers upserts the PlexServer and ArrService rows from configuration.
// Sections left empty in the config are skipped, not deleted.
func SeedServers(db *gorm.DB, cfg *config.Config) error {
	if cfg.Plex.URL != "" {
		name := cfg.Plex.Name
		if name == "" {
			name = "plex"
		}
		server := models.PlexServer{
			Name:    name,
			BaseURL: cfg.Plex.URL,
			Token:   cfg.Plex.Token,
			Active:  true,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_url", "token", "active"}),
		}).Create(&server)
		if result.Error != nil {
			return fmt.Errorf("db: seed plex server %q: %w", name, result.Error)
		}
	}

	for kind, arr := range map[string]config.ArrConfig{"sonarr": cfg.Sonarr, "radarr": cfg.Radarr} {
		if arr.URL == "" {
			continue
		}
		svc := models.ArrService{
			Kind:    kind,
			BaseURL: arr.URL,
			APIKey:  arr.APIKey,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_url", "api_key"}),
		}).Create(&svc)
		if result.Error != nil {
			return fmt.Errorf("db: seed %s: %w", kind, result.Error)
		}
	}

	return nil
}
