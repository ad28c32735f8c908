package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/craftlink/craftlink/internal/apperr"
	"github.com/craftlink/craftlink/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// CreateIfAbsent inserts a new user, ignoring the insert when the discord_id
// is already present.
func (r *BunUserRepository) CreateIfAbsent(ctx context.Context, user *models.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(user).
		Ignore().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByDiscordID retrieves a user by their Discord ID
func (r *BunUserRepository) GetByDiscordID(ctx context.Context, discordID int64) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("discord_id = ?", discordID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", discordID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("get user by discord ID: %w", err)
	}
	return user, nil
}

// BindMinecraftAccount swaps the bound Minecraft account inside a single
// transaction and reports the previous binding. The unique index on
// minecraft_uuid rejects the update when another user already holds the
// account; that is the only concurrency guard for the rebind race.
func (r *BunUserRepository) BindMinecraftAccount(ctx context.Context, discordID int64, minecraftUUID string) (*string, error) {
	var previous *string

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		current := new(models.User)
		err := tx.NewSelect().
			Model(current).
			Column("minecraft_uuid").
			Where("discord_id = ?", discordID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("user %d: %w", discordID, apperr.ErrNotFound)
			}
			return fmt.Errorf("read current binding: %w", err)
		}
		previous = current.MinecraftUUID

		_, err = tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("minecraft_uuid = ?", minecraftUUID).
			Set("updated_at = ?", time.Now()).
			Where("discord_id = ?", discordID).
			Exec(ctx)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("minecraft account %s: %w", minecraftUUID, apperr.ErrCollision)
			}
			return fmt.Errorf("update binding: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// BanByMinecraftUUID sets banned=true for the holder of the given account
func (r *BunUserRepository) BanByMinecraftUUID(ctx context.Context, minecraftUUID string) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("banned = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("minecraft_uuid = ?", minecraftUUID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no user bound to %s: %w", minecraftUUID, apperr.ErrNotFound)
	}
	return nil
}

// List retrieves all users
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "23505")
}
