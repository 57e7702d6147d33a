// Package identity resolves Discord user IDs to internal Matinee accounts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/matinee/internal/models"
	"gorm.io/gorm"
)

// VerifyResult describes whether a Discord user is linked and to whom.
type VerifyResult struct {
	Linked   bool
	User     *models.User
	LinkedAt time.Time
	SyncedAt *time.Time
}

// Store reads and writes DiscordLink rows.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: db is required")
	}
	return &Store{db: db}, nil
}

// Verify resolves a Discord user ID to an internal account. A revoked link
// is reported exactly like a missing one.
func (s *Store) Verify(ctx context.Context, discordUserID string) (VerifyResult, error) {
	var link models.DiscordLink
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("discord_user_id = ? AND revoked_at IS NULL", discordUserID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return VerifyResult{}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("identity: verify %s: %w", discordUserID, err)
	}
	return VerifyResult{
		Linked:   true,
		User:     &link.User,
		LinkedAt: link.LinkedAt,
		SyncedAt: link.SyncedAt,
	}, nil
}

// Link creates (or re-activates) a DiscordLink for the given account.
// Used by the operator CLI; the web linking flow writes the same rows.
func (s *Store) Link(ctx context.Context, discordUserID, name, email string) (*models.DiscordLink, error) {
	var link *models.DiscordLink
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DiscordLink
		err := tx.Where("discord_user_id = ?", discordUserID).First(&existing).Error
		switch {
		case err == nil:
			// Re-activate and repoint the existing link.
			updates := map[string]interface{}{
				"revoked_at": nil,
				"linked_at":  time.Now(),
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			link = &existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			user := models.User{Name: name, Email: email}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			created := models.DiscordLink{
				DiscordUserID: discordUserID,
				UserID:        user.ID,
				LinkedAt:      time.Now(),
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			link = &created
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("identity: link %s: %w", discordUserID, err)
	}
	return link, nil
}

// Unlink revokes the link for a Discord user. Unlinking an unknown user is
// an error so operators notice typos.
func (s *Store) Unlink(ctx context.Context, discordUserID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.DiscordLink{}).
		Where("discord_user_id = ? AND revoked_at IS NULL", discordUserID).
		Update("revoked_at", &now)
	if result.Error != nil {
		return fmt.Errorf("identity: unlink %s: %w", discordUserID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("identity: no active link for %s", discordUserID)
	}
	return nil
}
