package domain

import (
	"fmt"
	"strings"
)

// Identity is the protocol engine's view of one local account. The engine owns
// identity storage; this core only reads usernames to materialize actors.
type Identity struct {
	Username string
	Name     string
	Enabled  bool
}

// AddressConfig holds the fixed URL prefixes that, concatenated with a
// username, address a local actor and its five standard sub-collections.
type AddressConfig struct {
	UserIDPrefix    string
	InboxPrefix     string
	OutboxPrefix    string
	FollowersPrefix string
	FollowingPrefix string
	LikedPrefix     string
}

// Validate reports whether every prefix is set.
func (c AddressConfig) Validate() error {
	for _, pair := range []struct {
		name  string
		value string
	}{
		{"user id", c.UserIDPrefix},
		{"inbox", c.InboxPrefix},
		{"outbox", c.OutboxPrefix},
		{"followers", c.FollowersPrefix},
		{"following", c.FollowingPrefix},
		{"liked", c.LikedPrefix},
	} {
		if strings.TrimSpace(pair.value) == "" {
			return fmt.Errorf("%s prefix is required", pair.name)
		}
	}
	return nil
}

// ActorAddresses is the deterministic address set for one local username.
type ActorAddresses struct {
	ID        string
	Inbox     string
	Outbox    string
	Followers string
	Following string
	Liked     string
}

// ForUsername derives the address set for a username.
func (c AddressConfig) ForUsername(username string) ActorAddresses {
	return ActorAddresses{
		ID:        c.UserIDPrefix + username,
		Inbox:     c.InboxPrefix + username,
		Outbox:    c.OutboxPrefix + username,
		Followers: c.FollowersPrefix + username,
		Following: c.FollowingPrefix + username,
		Liked:     c.LikedPrefix + username,
	}
}

// UsernameFromID extracts the username from a local actor id. It reports false
// for ids outside the local identity namespace.
func (c AddressConfig) UsernameFromID(id string) (string, bool) {
	if c.UserIDPrefix == "" || !strings.HasPrefix(id, c.UserIDPrefix) {
		return "", false
	}
	username := id[len(c.UserIDPrefix):]
	if username == "" {
		return "", false
	}
	return username, true
}

// BuildActorPayload constructs the canonical Person payload for a local
// identity. Every field is a deterministic function of the identity and the
// configured prefixes.
func BuildActorPayload(identity Identity, addresses ActorAddresses) Payload {
	return Payload{
		"type":              "Person",
		"id":                addresses.ID,
		"name":              identity.Name,
		"preferredUsername": identity.Username,
		"inbox":             addresses.Inbox,
		"outbox":            addresses.Outbox,
		"followers":         addresses.Followers,
		"following":         addresses.Following,
		"liked":             addresses.Liked,
	}
}
