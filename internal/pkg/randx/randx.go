/*
Package randx provides functions for generating cryptographically secure random values and
unique identifiers.

It is used to tag every chat connection with a trace ID for the logs and to give clients a
default display name.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// NicknameRandomLength is the number of random characters in a default nickname.
	NicknameRandomLength = 6
)

// ConnectionID generates a UUID v4 string identifying one connection in the logs.
// Unlike user IDs it is never reused across server runs.
func ConnectionID() string {
	return uuid.New().String()
}

// UserNickname generates a random nickname with a "User_" prefix and 6 random Base62 characters.
func UserNickname() (string, error) {
	result := make([]byte, NicknameRandomLength)

	for i := range NicknameRandomLength {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for nickname: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return "User_" + string(result), nil
}
