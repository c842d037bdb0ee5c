package config

import (
	"sync"
	"time"
)

const defaultJWTSecret = "your-secret-key-change-this-in-production"

var (
	jwtMu         sync.RWMutex
	jwtSecret     = []byte(defaultJWTSecret)
	jwtExpiration = 24 * time.Hour
)

// SetJWT replaces the signing secret and token lifetime. Empty or zero
// values keep the current setting.
func SetJWT(secret string, expiration time.Duration) {
	jwtMu.Lock()
	defer jwtMu.Unlock()
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if expiration > 0 {
		jwtExpiration = expiration
	}
}

func JWTSecret() []byte {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtSecret
}

func JWTExpiration() time.Duration {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtExpiration
}
