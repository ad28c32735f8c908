package repository

import (
	"context"

	"github.com/craftlink/craftlink/internal/db/models"
)

// UserRepository exposes persistence operations for Discord-linked users.
type UserRepository interface {
	// CreateIfAbsent inserts the user unless a row with the same discord_id
	// already exists (idempotent, no-op on conflict).
	CreateIfAbsent(ctx context.Context, user *models.User) error
	GetByDiscordID(ctx context.Context, discordID int64) (*models.User, error)

	// BindMinecraftAccount atomically swaps the user's bound Minecraft
	// account and returns the previous binding, if any. A unique-constraint
	// violation (another user holds the account) surfaces as
	// apperr.ErrCollision.
	BindMinecraftAccount(ctx context.Context, discordID int64, minecraftUUID string) (previous *string, err error)

	// BanByMinecraftUUID sets banned=true for the user bound to the given
	// account. Returns apperr.ErrNotFound when no user holds it.
	BanByMinecraftUUID(ctx context.Context, minecraftUUID string) error

	List(ctx context.Context) ([]models.User, error)
}

// SessionRepository exposes persistence operations for sessions.
// Sessions are append-only: rows are created and marked expired, never deleted.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	MarkExpired(ctx context.Context, id string) error
}
