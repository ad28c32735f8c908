// Package binding coordinates the link between a Discord identity and a
// Minecraft account: the rebind protocol, the allow-list side effects, and
// the cached lookups exposed to authenticated users.
package binding

import (
	"context"
	"log"
	"strconv"

	"github.com/craftlink/craftlink/internal/apperr"
	"github.com/craftlink/craftlink/internal/cache"
	"github.com/craftlink/craftlink/internal/discord"
	"github.com/craftlink/craftlink/internal/mojang"
	"github.com/craftlink/craftlink/internal/repository"
	"github.com/craftlink/craftlink/internal/session"
	"github.com/craftlink/craftlink/internal/whitelist"
)

// Cache operation tags. Each lookup kind gets its own namespace so an
// argument can never alias across kinds.
const (
	opMinecraftNameToID = "mc_name_to_id"
	opMinecraftIDToName = "mc_id_to_name"
	opDiscordIDToName   = "discord_id_to_name"
)

// MojangService is the slice of the Mojang client the coordinator uses.
type MojangService interface {
	UUIDByUsername(ctx context.Context, username string) (mojang.Account, error)
	ProfileByUUID(ctx context.Context, uuid string) (mojang.Profile, error)
}

// DiscordDirectory resolves Discord user ids to identities via the bot API.
type DiscordDirectory interface {
	UserByID(ctx context.Context, id int64) (discord.Identity, error)
}

// Coordinator owns every mutation of the Discord-to-Minecraft binding and
// fronts the upstream lookup endpoints with the shared response cache.
type Coordinator struct {
	users     repository.UserRepository
	mojang    MojangService
	directory DiscordDirectory
	allowlist whitelist.Service
	cache     *cache.ResponseCache
}

// NewCoordinator wires the binding coordinator.
func NewCoordinator(
	users repository.UserRepository,
	mojangClient MojangService,
	directory DiscordDirectory,
	allowlist whitelist.Service,
	responses *cache.ResponseCache,
) *Coordinator {
	return &Coordinator{
		users:     users,
		mojang:    mojangClient,
		directory: directory,
		allowlist: allowlist,
		cache:     responses,
	}
}

// Rebind points the session's user at the Minecraft account named by
// username. The binding commits first; only then does the allow list change,
// removing the previous name (if any) before adding the new one. Allow-list
// failures are logged and swallowed: the database row is the source of truth
// and the server list converges on the next change.
//
// A banned user is rejected before any lookup or mutation happens.
func (c *Coordinator) Rebind(ctx context.Context, sess *session.Session, username string) (mojang.Account, error) {
	if sess == nil {
		return mojang.Account{}, apperr.ErrUnauthenticated
	}
	if sess.User.Banned {
		return mojang.Account{}, apperr.ErrForbidden
	}
	if username == "" {
		return mojang.Account{}, apperr.ErrBadRequest
	}

	account, err := c.MinecraftAccountByName(ctx, sess, username)
	if err != nil {
		return mojang.Account{}, err
	}

	previous, err := c.users.BindMinecraftAccount(ctx, sess.User.DiscordID, account.ID)
	if err != nil {
		return mojang.Account{}, err
	}

	if previous != nil && *previous != account.ID {
		c.removeFromAllowList(ctx, sess, *previous)
	}
	if err := c.allowlist.Add(ctx, account.Name); err != nil {
		log.Printf("WARNING: allow-list add %s: %v", account.Name, err)
	}

	return account, nil
}

// removeFromAllowList resolves the previous binding's current username and
// drops it from the allow list. Both steps are best-effort.
func (c *Coordinator) removeFromAllowList(ctx context.Context, sess *session.Session, previousUUID string) {
	name, err := c.MinecraftNameByUUID(ctx, sess, previousUUID)
	if err != nil {
		log.Printf("WARNING: resolve previous binding %s: %v", previousUUID, err)
		return
	}
	if err := c.allowlist.Remove(ctx, name); err != nil {
		log.Printf("WARNING: allow-list remove %s: %v", name, err)
	}
}

// MinecraftAccountByName resolves a Minecraft username to its account,
// served from the session-scoped cache when fresh.
func (c *Coordinator) MinecraftAccountByName(ctx context.Context, sess *session.Session, username string) (mojang.Account, error) {
	key := cache.Key{Op: opMinecraftNameToID, Fingerprint: sess.Fingerprint(), Arg: username}

	var account mojang.Account
	if c.cache.Get(key, &account) {
		return account, nil
	}

	account, err := c.mojang.UUIDByUsername(ctx, username)
	if err != nil {
		return mojang.Account{}, err
	}
	if err := c.cache.Put(key, account); err != nil {
		log.Printf("WARNING: cache minecraft account %s: %v", username, err)
	}
	return account, nil
}

// MinecraftProfileByUUID resolves a Minecraft account id to its current
// profile (username plus signed properties), served from the session-scoped
// cache when fresh.
func (c *Coordinator) MinecraftProfileByUUID(ctx context.Context, sess *session.Session, uuid string) (mojang.Profile, error) {
	key := cache.Key{Op: opMinecraftIDToName, Fingerprint: sess.Fingerprint(), Arg: uuid}

	var profile mojang.Profile
	if c.cache.Get(key, &profile) {
		return profile, nil
	}

	profile, err := c.mojang.ProfileByUUID(ctx, uuid)
	if err != nil {
		return mojang.Profile{}, err
	}
	if err := c.cache.Put(key, profile); err != nil {
		log.Printf("WARNING: cache minecraft profile %s: %v", uuid, err)
	}
	return profile, nil
}

// MinecraftNameByUUID resolves an account id to just its current username.
func (c *Coordinator) MinecraftNameByUUID(ctx context.Context, sess *session.Session, uuid string) (string, error) {
	profile, err := c.MinecraftProfileByUUID(ctx, sess, uuid)
	if err != nil {
		return "", err
	}
	return profile.Name, nil
}

// DiscordNameByID resolves a Discord user id to its username via the bot
// API, served from the session-scoped cache when fresh.
func (c *Coordinator) DiscordNameByID(ctx context.Context, sess *session.Session, id int64) (string, error) {
	key := cache.Key{Op: opDiscordIDToName, Fingerprint: sess.Fingerprint(), Arg: strconv.FormatInt(id, 10)}

	var name string
	if c.cache.Get(key, &name) {
		return name, nil
	}

	identity, err := c.directory.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	if err := c.cache.Put(key, identity.Username); err != nil {
		log.Printf("WARNING: cache discord name %d: %v", id, err)
	}
	return identity.Username, nil
}
