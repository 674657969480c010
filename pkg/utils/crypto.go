package utils

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// ErrEmptySeed is returned when DeriveIdempotencyKey is given nothing to hash.
var ErrEmptySeed = errors.New("idempotency key seed cannot be empty")

// DeriveIdempotencyKey folds a user, SKU, and client-supplied nonce into a
// single deterministic key so that retried submissions of the same logical
// request collide on purpose. Unlike bcrypt, blake2b is unsalted and
// deterministic, which is exactly what a dedup key needs.
func DeriveIdempotencyKey(userID, sku, clientNonce string) (string, error) {
	if userID == "" || sku == "" || clientNonce == "" {
		return "", ErrEmptySeed
	}
	sum := blake2b.Sum256([]byte(userID + "|" + sku + "|" + clientNonce))
	return hex.EncodeToString(sum[:]), nil
}
