package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User represents a Discord identity known to the service.
// DiscordID is immutable once created. MinecraftUUID is nullable and mutated
// only by the binding coordinator; the unique constraint on it is the sole
// guard against two users claiming the same Minecraft account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	DiscordID       int64     `bun:"discord_id,pk"`
	DiscordUsername string    `bun:"discord_username,notnull"`
	MinecraftUUID   *string   `bun:"minecraft_uuid,unique"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp"`
	IsAdmin         bool      `bun:"is_admin,notnull,default:false"`
	Banned          bool      `bun:"banned,notnull,default:false"`
}

// Session tracks a server-side session backed by a Discord token pair.
// Sessions are never deleted; rotation and revocation mark Expired instead,
// keeping dead rows for audit. A session past ExpiresAt is treated as dead
// even while Expired is still false.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID           string    `bun:"id,pk"`
	UserID       int64     `bun:"user_id,notnull"` // FK to users(discord_id)
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	Expired      bool      `bun:"expired,notnull,default:false"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Alive reports whether the session is still authoritative at the given
// instant. Expiry is evaluated dynamically; there is no background sweep.
func (s *Session) Alive(now time.Time) bool {
	return !s.Expired && now.Before(s.ExpiresAt)
}
