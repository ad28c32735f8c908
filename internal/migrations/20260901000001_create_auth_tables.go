package migrations

import (
	"context"
	"fmt"

	"github.com/craftlink/craftlink/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260901000001, down_20260901000001)
}

// up_20260901000001 creates the users and sessions tables
func up_20260901000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	// The unique index on minecraft_uuid is the sole concurrency guard
	// against two users binding the same account. NULLs are exempt.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_minecraft_uuid
		ON users (minecraft_uuid)
		WHERE minecraft_uuid IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to create users minecraft_uuid index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions user_id index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions expires_at index: %w", err)
	}

	// SQLite cannot ALTER TABLE ADD CONSTRAINT; the FK only exists on Postgres.
	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE sessions
			ADD CONSTRAINT fk_sessions_user_id
			FOREIGN KEY (user_id) REFERENCES users(discord_id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add sessions user_id FK: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260901000001 drops the auth tables in reverse order
func down_20260901000001(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"sessions", "users"} {
		fmt.Printf(" [down] dropping %s table...", table)
		_, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		if err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
