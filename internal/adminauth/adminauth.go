// Package adminauth protects mutating maintenance endpoints with a single
// bearer token, the closest analogue this single-tenant core has to the
// teacher's user accounts. There is no login flow and no session store:
// an operator sets the token once (via cmd/resetpw) and every request
// that wants to mutate catalog state presents it as a bearer credential.
package adminauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"photonix-core/internal/catalog"
	"photonix-core/internal/errs"
)

// settingKey is the settings-table row holding the bcrypt hash of the
// current admin token.
const settingKey = "admin_token_hash"

// GenerateToken returns a new random 32-byte token, hex-encoded, the same
// way the teacher mints session tokens before hashing them for storage.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.Wrap(errs.Internal, "adminauth.generate", err)
	}
	return hex.EncodeToString(buf), nil
}

// SetToken hashes token with bcrypt and stores it as the current admin
// credential, replacing whatever was there before.
func SetToken(ctx context.Context, reg *catalog.Registry, token string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return errs.Wrap(errs.Internal, "adminauth.hash", err)
	}
	return reg.SetSetting(ctx, settingKey, string(hash))
}

// Configured reports whether an admin token has ever been set.
func Configured(ctx context.Context, reg *catalog.Registry) (bool, error) {
	_, ok, err := reg.GetSetting(ctx, settingKey)
	return ok, err
}

// Verify reports whether token matches the stored admin credential. A
// registry with no token configured never verifies — there is no
// open-by-default fallback.
func Verify(ctx context.Context, reg *catalog.Registry, token string) (bool, error) {
	hash, ok, err := reg.GetSetting(ctx, settingKey)
	if err != nil {
		return false, err
	}
	if !ok || hash == "" {
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return false, nil
	}
	return true, nil
}

// RequireBearer wraps next so it only runs when the request carries an
// "Authorization: Bearer <token>" header matching the configured admin
// credential. Responds 401 otherwise, 503 if no token has been configured
// at all (the maintenance surface is simply unavailable until one is set).
func RequireBearer(reg *catalog.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			presented := strings.TrimPrefix(header, prefix)

			configured, err := Configured(r.Context(), reg)
			if err != nil {
				http.Error(w, "admin token check failed", http.StatusInternalServerError)
				return
			}
			if !configured {
				http.Error(w, "admin token not configured", http.StatusServiceUnavailable)
				return
			}

			ok, err := Verify(r.Context(), reg, presented)
			if err != nil {
				http.Error(w, "admin token check failed", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
