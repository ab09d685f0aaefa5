package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
)

const secretRandomBytes = 24

// keyCredentialService mints, rotates and resolves per-merchant,
// per-environment API key material. Signing/webhook secrets are
// encrypted at rest; only the API key's fingerprint is ever stored.
type keyCredentialService struct {
	repo ports.CredentialsRepository
	enc  ports.EncryptionService
}

// NewKeyCredentialService creates a new credential service.
func NewKeyCredentialService(repo ports.CredentialsRepository, enc ports.EncryptionService) ports.CredentialService {
	return &keyCredentialService{repo: repo, enc: enc}
}

func (s *keyCredentialService) Mint(ctx context.Context, merchantID uuid.UUID, env domain.Env) (string, string, error) {
	apiKey, err := generateSecret(apiKeyPrefix(env))
	if err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	apiSecret, err := generateSecret(apiSecretPrefix(env))
	if err != nil {
		return "", "", fmt.Errorf("generating api secret: %w", err)
	}
	webhookSecret, err := generateSecret(webhookSecretPrefix(env))
	if err != nil {
		return "", "", fmt.Errorf("generating webhook secret: %w", err)
	}

	set, err := s.buildSet(apiKey, apiSecret, webhookSecret)
	if err != nil {
		return "", "", err
	}

	if err := s.repo.RotateEnv(ctx, merchantID, env, *set); err != nil {
		return "", "", fmt.Errorf("persisting credentials: %w", err)
	}

	return apiKey, webhookSecret, nil
}

func (s *keyCredentialService) Rotate(ctx context.Context, merchantID uuid.UUID, env domain.Env) (string, string, error) {
	// Rotation mints a fresh key pair the same way as Mint; the previous
	// pair is overwritten, invalidating it immediately.
	return s.Mint(ctx, merchantID, env)
}

func (s *keyCredentialService) Resolve(ctx context.Context, apiKey string) (uuid.UUID, domain.Env, error) {
	hash := fingerprint(apiKey)
	merchantID, env, err := s.repo.LookupByHash(ctx, hash)
	if err != nil {
		return uuid.Nil, "", err
	}
	return merchantID, env, nil
}

func (s *keyCredentialService) buildSet(apiKey, apiSecret, webhookSecret string) (*domain.EnvCredentialSet, error) {
	encSecret, err := s.enc.Encrypt(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypting api secret: %w", err)
	}
	encWebhook, err := s.enc.Encrypt(webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypting webhook secret: %w", err)
	}

	prefixLen := 12
	if len(apiKey) < prefixLen {
		prefixLen = len(apiKey)
	}

	return &domain.EnvCredentialSet{
		APIKeyHash:    fingerprint(apiKey),
		APIKeyPrefix:  apiKey[:prefixLen],
		APISecret:     encSecret,
		WebhookSecret: encWebhook,
		CreatedAt:     time.Now(),
	}, nil
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// generateSecret produces prefix + base64url(no padding) of 24 random bytes.
func generateSecret(prefix string) (string, error) {
	buf := make([]byte, secretRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func apiKeyPrefix(env domain.Env) string {
	if env == domain.EnvSandbox {
		return "sk_test_"
	}
	return "sk_live_"
}

func apiSecretPrefix(env domain.Env) string {
	if env == domain.EnvSandbox {
		return "sksec_test_"
	}
	return "sksec_"
}

func webhookSecretPrefix(env domain.Env) string {
	if env == domain.EnvSandbox {
		return "whsec_test_"
	}
	return "whsec_"
}
