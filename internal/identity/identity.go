// Package identity maps a human display name onto the synthetic e-mail
// address the hosted auth service requires. The name is the username: two
// people typing the same trimmed name resolve to the same account.
package identity

import (
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// Prefix keeps the local part from starting with a digit.
	Prefix = "u"
	// Domain is appended to every synthetic identity.
	Domain = "@survey-system.com"
)

var (
	ErrEmptyName      = errors.New("name is required")
	ErrNotSyntheticID = errors.New("not a synthetic identity")
)

// Secret is the password paired with an identity. It never prints.
type Secret string

func (Secret) String() string { return "[redacted]" }

func (Secret) GoString() string { return "[redacted]" }

type Identity struct {
	RawName     string
	SyntheticID string
	Secret      Secret
}

// SyntheticID trims name, hex-encodes its UTF-8 bytes and wraps the result
// in Prefix and Domain.
func SyntheticID(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyName
	}

	return Prefix + hex.EncodeToString([]byte(trimmed)) + Domain, nil
}

func New(name string, secret string) (Identity, error) {
	id, err := SyntheticID(name)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		RawName:     strings.TrimSpace(name),
		SyntheticID: id,
		Secret:      Secret(secret),
	}, nil
}

// DisplayName reverses SyntheticID. It is used as a display fallback so the
// raw synthetic address never reaches the UI.
func DisplayName(syntheticID string) (string, error) {
	local, ok := strings.CutSuffix(syntheticID, Domain)
	if !ok {
		return "", ErrNotSyntheticID
	}

	encoded, ok := strings.CutPrefix(local, Prefix)
	if !ok || encoded == "" {
		return "", ErrNotSyntheticID
	}

	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", ErrNotSyntheticID
	}

	return string(raw), nil
}
