/*
Package user contains the data structures and rules related to user identity.

It defines the public view of a connected user (the User struct), used by the admin API, and
the validation applied to display names before they enter the registry or the wire.
*/
package user

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"relaychat/internal/app/protocol"
	"relaychat/internal/pkg/errs"
)

// MaxNameLength is the maximum length of a display name in bytes.
const MaxNameLength = 32

// User represents the identity information of a connected chat participant.
// Fields use JSON tags for serialization in admin API responses.
type User struct {
	// ID is the server-assigned user ID.
	ID protocol.UserID `json:"id"`

	// Nickname is the display name, or "unknown" before the user set one.
	Nickname string `json:"nickname"`

	// Transport names the connection kind ("tcp" or "websocket").
	Transport string `json:"transport,omitempty"`
}

// CleanName trims surrounding spaces and validates a display name.
// Valid names are 1 to MaxNameLength bytes of UTF-8 without control characters.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return "", errs.NewError(errs.ErrInvalidUsername)
	}

	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", errs.NewError(errs.ErrInvalidUsername)
	}

	return name, nil
}
