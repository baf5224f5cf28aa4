// SPDX-License-Identifier: ice License 1.0

package signer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	Config struct {
		SecretKey          string `yaml:"secretKey"`
		BunkerURL          string `yaml:"bunkerUrl"`
		BunkerClientSecret string `yaml:"bunkerClientSecret"`
	}

	// Delegate is a third party that holds the user's key and signs or
	// encrypts on request. Both the NIP-46 bunker session and an injected
	// external signer satisfy it; *nip46.BunkerClient implements it as-is.
	Delegate interface {
		SignEvent(ctx context.Context, event *nostr.Event) error
		GetPublicKey(ctx context.Context) (string, error)
		NIP44Encrypt(ctx context.Context, targetPublicKey, plaintext string) (string, error)
		NIP44Decrypt(ctx context.Context, targetPublicKey, ciphertext string) (string, error)
	}

	// Service signs and encrypts with a fixed priority: an explicit local
	// secret key always wins (no network, no third-party trust), then the
	// bunker session (the persisted login method when present), then the
	// injected external signer.
	Service struct {
		secretKey string
		bunker    Delegate
		extension Delegate
	}
)

var (
	ErrNoSigningMethod = errors.New("no signing method available")
	ErrNoEncryption    = errors.New("no encryption method available")
)
