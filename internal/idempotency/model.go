// Package idempotency stores the responses of mutating requests so that a
// client retrying with the same Idempotency-Key gets the original answer
// instead of a second side effect.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when no response is stored for a key.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when a response is already stored for a key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned for an empty key or one with characters
	// outside printable ASCII.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long a stored response can be replayed.
const DefaultExpiry = 24 * time.Hour

// Record is a stored response. Keys are scoped to the user that sent them,
// so two users reusing the same client-generated key never collide.
type Record struct {
	Key          string    `json:"key" cbor:"1,keyasint"`
	UserID       string    `json:"user_id" cbor:"2,keyasint"`
	Method       string    `json:"method" cbor:"3,keyasint"`
	Route        string    `json:"route" cbor:"4,keyasint"`
	StatusCode   int       `json:"status_code" cbor:"5,keyasint"`
	Body         []byte    `json:"body" cbor:"6,keyasint"`
	ResponseHash string    `json:"response_hash" cbor:"7,keyasint"`
	CreatedAt    time.Time `json:"created_at" cbor:"8,keyasint"`
}

// Matches reports whether the record was produced by the same kind of
// request. A key reused for a different route is not replayed.
func (r *Record) Matches(method, route string) bool {
	return r.Method == method && r.Route == route
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrKeyNotFound when nothing is stored for userID and key.
	Get(ctx context.Context, userID, key string) (*Record, error)

	// Put stores rec until ttl elapses. It returns ErrKeyExists when a
	// record for the same user and key is already stored.
	Put(ctx context.Context, rec *Record, ttl time.Duration) error
}

// ValidateKey checks that key is non-empty printable ASCII of at most
// MaxKeyLength bytes.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

// ComputeResponseHash returns the hex SHA-256 of body.
func ComputeResponseHash(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

func scopedKey(userID, key string) string {
	return userID + ":" + key
}
