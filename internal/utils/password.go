package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 12

	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

var ErrEmptyPassword = errors.New("password cannot be empty")

// Hasher turns passwords into salted one-way credentials and checks
// candidates against them. Verify never fails loudly: a malformed or foreign
// hash is simply a mismatch.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hashed, password string) bool
}

// NewHasher returns the hasher named by kind.
func NewHasher(kind string, bcryptCost int) (Hasher, error) {
	switch kind {
	case "", HasherBcrypt:
		return NewBcryptHasher(bcryptCost), nil
	case HasherArgon2id:
		return NewArgon2idHasher(DefaultArgon2idParams()), nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", kind)
	}
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = BcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashedPassword, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedPassword), nil
}

func (h *BcryptHasher) Verify(hashed, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), bcryptInput(password))
	return err == nil
}

// bcryptInput folds any password into 44 bytes. bcrypt rejects inputs longer
// than 72 bytes and would otherwise ignore everything past that point.
func bcryptInput(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// Argon2idParams are the cost parameters written into every PHC string.
type Argon2idParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Memory:      64 * 1024,
		Iterations:  1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Upper bounds accepted when decoding a stored hash, so a tampered row cannot
// make a single Verify allocate gigabytes.
const (
	argon2MaxMemory      = 1024 * 1024
	argon2MaxIterations  = 16
	argon2MaxParallelism = 64
	argon2MaxKeyLength   = 128
)

type Argon2idHasher struct {
	params Argon2idParams
}

func NewArgon2idHasher(params Argon2idParams) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

// Hash encodes as $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(hashed, password string) bool {
	params, salt, expected, err := decodeArgon2id(hashed)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	var p Argon2idParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if memory == 0 || memory > argon2MaxMemory ||
		iterations == 0 || iterations > argon2MaxIterations ||
		parallelism == 0 || parallelism > argon2MaxParallelism {
		return p, nil, nil, errors.New("parameters out of bounds")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errors.New("invalid salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > argon2MaxKeyLength {
		return p, nil, nil, errors.New("invalid key")
	}

	p = Argon2idParams{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: uint8(parallelism),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	return p, salt, key, nil
}
