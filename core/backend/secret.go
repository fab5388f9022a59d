package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	jwtRegistryPrefix = "_jwt_"
	jwtRegistryKey    = "secret"
)

// jwtSecret returns the configured secret. Without one, the secret is read from the
// registry, and generated and stored there on first use.
func (b *Backend) jwtSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	ctx := context.Background()
	accessor := b.Registry.Accessor(jwtRegistryPrefix)
	var secret string
	if _, err := accessor.Read(ctx, jwtRegistryKey, &secret); err != nil {
		return nil, fmt.Errorf("cannot read access token secret: %w", err)
	}
	if secret != "" {
		return []byte(secret), nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("cannot generate access token secret: %w", err)
	}
	secret = hex.EncodeToString(raw)
	if err := accessor.Write(ctx, jwtRegistryKey, secret); err != nil {
		return nil, fmt.Errorf("cannot store access token secret: %w", err)
	}
	return []byte(secret), nil
}
