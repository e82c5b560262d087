package pool

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/ccrelay/nexus/internal/auth/google"
	"github.com/ccrelay/nexus/internal/db/models"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// GormRefresher is the production Refresher: it performs the OAuth
// refresh-token exchange and persists the rotated token back to the
// database. Concurrent refreshes for the same credential are collapsed
// into one round trip via singleflight, per spec.md §5's "single-flight
// per account" requirement. Grounded on
// internal/auth/token/manager.go:refreshToken.
type GormRefresher struct {
	db    *gorm.DB
	group singleflight.Group
}

// NewGormRefresher builds a Refresher backed by db.
func NewGormRefresher(db *gorm.DB) *GormRefresher {
	return &GormRefresher{db: db}
}

func (r *GormRefresher) Refresh(ctx context.Context, cred *Credential) error {
	_, err, _ := r.group.Do(cred.ID, func() (any, error) {
		return nil, r.refreshLocked(ctx, cred)
	})
	return err
}

func (r *GormRefresher) refreshLocked(ctx context.Context, cred *Credential) error {
	cred.mu.Lock()
	refreshToken := cred.RefreshToken
	expiresAt := cred.ExpiresAt
	cred.mu.Unlock()

	if time.Now().Add(60 * time.Second).Before(expiresAt) {
		return nil // another goroutine already refreshed while we waited
	}

	config := google.GetOAuthConfig("")
	tokenSource := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	newToken, err := tokenSource.Token()
	if err != nil {
		log.Printf("❌ refresh token failed for %s: %v", cred.Email, err)
		if isPermanentRefreshError(err) {
			cred.deactivate()
			r.db.Model(&models.Account{}).Where("id = ?", cred.ID).Update("is_active", false)
		}
		return err
	}

	cred.applyRefresh(newToken.AccessToken, newToken.RefreshToken, newToken.Expiry)

	updates := map[string]any{
		"access_token": newToken.AccessToken,
		"expires_at":   newToken.Expiry,
		"last_used_at": time.Now(),
		"is_active":    true,
	}
	if newToken.RefreshToken != "" {
		updates["refresh_token"] = newToken.RefreshToken
	}
	if err := r.db.Model(&models.Account{}).Where("id = ?", cred.ID).Updates(updates).Error; err != nil {
		log.Printf("⚠️ failed to persist refreshed token for %s: %v", cred.Email, err)
	}
	log.Printf("✅ refreshed token for %s (expires %s)", cred.Email, newToken.Expiry.Format(time.RFC3339))
	return nil
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid_grant", "invalid_client", "unauthorized_client", "revoked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// LoadCredentials loads active accounts from the database into Credential
// values, extracting project_id from the JSON metadata blob the OAuth
// collaborator writes.
func LoadCredentials(db *gorm.DB) ([]*Credential, error) {
	var accounts []models.Account
	if err := db.Where("is_active = ?", true).Order("created_at ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}

	creds := make([]*Credential, 0, len(accounts))
	for _, acc := range accounts {
		creds = append(creds, newCredential(
			acc.ID, acc.Email, acc.Provider, acc.AccessToken, acc.RefreshToken,
			extractProjectID(acc.Metadata), acc.ExpiresAt, acc.IsActive,
		))
	}
	return creds, nil
}

const defaultProjectID = "bamboo-precept-lgxtn"

func extractProjectID(metadata string) string {
	if metadata == "" {
		return defaultProjectID
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(metadata), &data); err != nil {
		return defaultProjectID
	}
	if pid, ok := data["project_id"]; ok && pid != "" {
		return pid
	}
	return defaultProjectID
}
