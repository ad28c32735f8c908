// Package whitelist propagates account bindings to the Minecraft server's
// allow list. Callers treat failures as best-effort: a failed add or remove
// after a committed rebind is logged, never rolled back.
package whitelist

import (
	"context"
	"fmt"
	"log"

	"github.com/gorcon/rcon"

	"github.com/craftlink/craftlink/internal/config"
)

// Service mutates the server allow list by display name.
type Service interface {
	Add(ctx context.Context, username string) error
	Remove(ctx context.Context, username string) error
}

// RCON drives the vanilla whitelist commands over the RCON protocol.
// A fresh connection is dialed per command; whitelist churn is rare enough
// that connection reuse is not worth the bookkeeping.
type RCON struct {
	addr     string
	password string
}

// NewRCON creates an RCON-backed whitelist service.
func NewRCON(cfg config.WhitelistConfig) *RCON {
	return &RCON{addr: cfg.Addr, password: cfg.Password}
}

// Add whitelists the given username.
func (r *RCON) Add(ctx context.Context, username string) error {
	return r.run(ctx, fmt.Sprintf("whitelist add %s", username))
}

// Remove drops the given username from the whitelist.
func (r *RCON) Remove(ctx context.Context, username string) error {
	return r.run(ctx, fmt.Sprintf("whitelist remove %s", username))
}

func (r *RCON) run(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := rcon.Dial(r.addr, r.password)
	if err != nil {
		return fmt.Errorf("rcon dial %s: %w", r.addr, err)
	}
	defer conn.Close()

	response, err := conn.Execute(command)
	if err != nil {
		return fmt.Errorf("rcon execute %q: %w", command, err)
	}
	log.Printf("whitelist: %s -> %s", command, response)
	return nil
}

// Disabled is used when no RCON endpoint is configured. Every call is a
// logged no-op so the rest of the rebind flow behaves identically.
type Disabled struct{}

// Add logs the skipped command.
func (Disabled) Add(_ context.Context, username string) error {
	log.Printf("whitelist disabled: skipping add %s", username)
	return nil
}

// Remove logs the skipped command.
func (Disabled) Remove(_ context.Context, username string) error {
	log.Printf("whitelist disabled: skipping remove %s", username)
	return nil
}
