// Package credentials manages the per-user renewable access credential for
// the external fitness source.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/challenge/internal/domain"
	"example.com/challenge/internal/observability"
	"example.com/challenge/internal/strava"
)

// Credential is the stored access/refresh token pair for one user.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Store persists credentials. Get returns (nil, nil) when the user has none.
type Store interface {
	Get(ctx context.Context, userID string) (*Credential, error)
	Put(ctx context.Context, credential Credential) error
	Delete(ctx context.Context, userID string) error
}

// Refresher performs the upstream token-refresh exchange.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (strava.TokenGrant, error)
}

// defaultRefreshMargin refreshes slightly before expiry so an access token
// is never used past it.
const defaultRefreshMargin = 60 * time.Second

// Manager implements domain.CredentialSource. Refreshes are single-flight
// per user: the upstream source rotates refresh tokens, and two in-flight
// refreshes with the same token risk invalidating each other.
type Manager struct {
	store     Store
	refresher Refresher
	margin    time.Duration
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager constructs a Manager. A non-positive margin falls back to the
// 60s default.
func NewManager(store Store, refresher Refresher, margin time.Duration) *Manager {
	if margin <= 0 {
		margin = defaultRefreshMargin
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// EnsureAccessToken returns a valid access token for the user, refreshing
// and persisting the stored credential when it is at or near expiry. On
// refresh failure the stored credential is left untouched and the caller
// must treat the user as needing re-authorization.
func (m *Manager) EnsureAccessToken(ctx context.Context, userID string) (string, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", domain.ErrNotConnected
	}

	if m.now().Before(cred.ExpiresAt.Add(-m.margin)) {
		return cred.AccessToken, nil
	}

	grant, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		observability.RecordTokenRefresh(false)
		return "", fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}

	next := Credential{
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		UpdatedAt:    m.now().UTC(),
	}
	// The upstream source may omit the refresh token when it hasn't rotated.
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	if err := m.store.Put(ctx, next); err != nil {
		return "", fmt.Errorf("%w: failed to persist refreshed credential: %v", domain.ErrRefreshFailed, err)
	}

	observability.RecordTokenRefresh(true)
	return next.AccessToken, nil
}

// Connect stores a freshly granted credential, replacing any previous one.
func (m *Manager) Connect(ctx context.Context, userID string, grant strava.TokenGrant) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Put(ctx, Credential{
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		UpdatedAt:    m.now().UTC(),
	})
}

// Status reports whether the user has a stored credential and when it
// expires.
func (m *Manager) Status(ctx context.Context, userID string) (*Credential, error) {
	return m.store.Get(ctx, userID)
}

// Disconnect deletes the stored credential. The user must re-authorize with
// the upstream source to sync again.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Delete(ctx, userID)
}
