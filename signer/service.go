// SPDX-License-Identifier: ice License 1.0

package signer

import (
	"context"
	"log"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
	"github.com/nbd-wtf/go-nostr/nip46"

	"github.com/ice-blockchain/longform/model"
)

func New(secretKey string, bunker, extension Delegate) *Service {
	return &Service{secretKey: secretKey, bunker: bunker, extension: extension}
}

// ConnectBunker establishes a NIP-46 session; the bunker's own relay channel
// rides a dedicated pool owned by ctx.
func ConnectBunker(ctx context.Context, clientSecretKey, bunkerURL string) (Delegate, error) {
	pool := nostr.NewSimplePool(ctx)
	bunker, err := nip46.ConnectBunker(ctx, clientSecretKey, bunkerURL, pool, func(authURL string) {
		log.Printf("WARN: bunker requested interactive auth: %v", authURL)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to bunker %v", bunkerURL)
	}

	return bunker, nil
}

// Sign signs the event with the first available method: the explicit secret
// key (argument beats the configured one), the bunker session, the external
// signer. There is no sensible partial result here, so unavailability is the
// one failure that surfaces as a typed error.
func (s *Service) Sign(ctx context.Context, event *model.Event, secretKey string) error {
	if sk := s.localKey(secretKey); sk != "" {
		return errors.Wrap(event.Sign(sk), "failed to sign event locally")
	}
	if s.bunker != nil {
		return errors.Wrap(s.bunker.SignEvent(ctx, &event.Event), "failed to sign event via bunker")
	}
	if s.extension != nil {
		return errors.Wrap(s.extension.SignEvent(ctx, &event.Event), "failed to sign event via extension")
	}

	return ErrNoSigningMethod
}

// PublicKey follows the identical priority chain as Sign.
func (s *Service) PublicKey(ctx context.Context) (string, error) {
	if sk := s.localKey(""); sk != "" {
		pubKey, err := nostr.GetPublicKey(sk)

		return pubKey, errors.Wrap(err, "failed to derive public key from local secret key")
	}
	if s.bunker != nil {
		pubKey, err := s.bunker.GetPublicKey(ctx)

		return pubKey, errors.Wrap(err, "failed to get public key from bunker")
	}
	if s.extension != nil {
		pubKey, err := s.extension.GetPublicKey(ctx)

		return pubKey, errors.Wrap(err, "failed to get public key from extension")
	}

	return "", ErrNoSigningMethod
}

// Encrypt NIP-44-encrypts plaintext towards the recipient, same priority
// chain: local conversation key first, else bunker, else extension.
func (s *Service) Encrypt(ctx context.Context, plaintext, recipientPubKey string) (string, error) {
	if sk := s.localKey(""); sk != "" {
		conversationKey, err := nip44.GenerateConversationKey(recipientPubKey, sk)
		if err != nil {
			return "", errors.Wrap(err, "failed to derive conversation key")
		}
		ciphertext, err := nip44.Encrypt(plaintext, conversationKey)

		return ciphertext, errors.Wrap(err, "failed to encrypt locally")
	}
	if s.bunker != nil {
		ciphertext, err := s.bunker.NIP44Encrypt(ctx, recipientPubKey, plaintext)

		return ciphertext, errors.Wrap(err, "failed to encrypt via bunker")
	}
	if s.extension != nil {
		ciphertext, err := s.extension.NIP44Encrypt(ctx, recipientPubKey, plaintext)

		return ciphertext, errors.Wrap(err, "failed to encrypt via extension")
	}

	return "", ErrNoEncryption
}

// Decrypt NIP-44-decrypts ciphertext from the counterparty.
func (s *Service) Decrypt(ctx context.Context, ciphertext, counterpartyPubKey string) (string, error) {
	if sk := s.localKey(""); sk != "" {
		conversationKey, err := nip44.GenerateConversationKey(counterpartyPubKey, sk)
		if err != nil {
			return "", errors.Wrap(err, "failed to derive conversation key")
		}
		plaintext, err := nip44.Decrypt(ciphertext, conversationKey)

		return plaintext, errors.Wrap(err, "failed to decrypt locally")
	}
	if s.bunker != nil {
		plaintext, err := s.bunker.NIP44Decrypt(ctx, counterpartyPubKey, ciphertext)

		return plaintext, errors.Wrap(err, "failed to decrypt via bunker")
	}
	if s.extension != nil {
		plaintext, err := s.extension.NIP44Decrypt(ctx, counterpartyPubKey, ciphertext)

		return plaintext, errors.Wrap(err, "failed to decrypt via extension")
	}

	return "", ErrNoEncryption
}

func (s *Service) localKey(override string) string {
	if override != "" {
		return override
	}

	return s.secretKey
}
