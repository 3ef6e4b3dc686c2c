package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-chat-gateway/pkg/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signAccessToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub":        sub,
		"token_type": "access",
		"role":       "user",
		"exp":        exp.Unix(),
	}).SignedString(priv)
	require.NoError(t, err)
	return signed
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	access := signAccessToken(t, "user-1", time.Now().Add(-time.Minute))
	claims := token.DecodeUnsafe(access)
	require.NotNil(t, claims)
	store.Rotate(access, "refresh-old", claims)
	return store
}

func TestRefreshSingleFlight(t *testing.T) {
	var calls int32

	fresh := signAccessToken(t, "user-1", time.Now().Add(30*time.Minute))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// Hold the rotation open long enough for all callers to pile up.
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]string{
				"access_token":  fresh,
				"refresh_token": "refresh-new",
			},
		})
	}))
	defer srv.Close()

	store := seededStore(t)
	refresher := NewRefresher(store, srv.URL, "")

	const callers = 8
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = refresher.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers must collapse into one rotation")
	for i, ok := range results {
		assert.True(t, ok, "caller %d should observe the shared success", i)
	}
	assert.Equal(t, "refresh-new", store.RefreshToken())
	assert.Equal(t, fresh, store.AccessToken())
	assert.True(t, store.Snapshot().IsAuthenticated)
}

func TestRefreshRotatesOnlyAccessWhenNoNewRefreshToken(t *testing.T) {
	fresh := signAccessToken(t, "user-1", time.Now().Add(30*time.Minute))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"access_token": fresh},
		})
	}))
	defer srv.Close()

	store := seededStore(t)
	refresher := NewRefresher(store, srv.URL, "")

	require.True(t, refresher.Refresh(context.Background()))
	assert.Equal(t, "refresh-old", store.RefreshToken(), "refresh token must survive an access-only rotation")
}

func TestRefreshFailureClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := seededStore(t)
	refresher := NewRefresher(store, srv.URL, "")

	assert.False(t, refresher.Refresh(context.Background()))
	assert.False(t, store.Snapshot().IsAuthenticated)
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
}

func TestRefreshWithoutRefreshTokenClearsSession(t *testing.T) {
	store := NewStore()
	refresher := NewRefresher(store, "http://127.0.0.1:0/refresh", "")

	assert.False(t, refresher.Refresh(context.Background()))
	assert.False(t, store.Snapshot().IsAuthenticated)
}

func TestRefreshNetworkErrorClearsSession(t *testing.T) {
	store := seededStore(t)
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	refresher := NewRefresher(store, srv.URL, "")
	assert.False(t, refresher.Refresh(context.Background()))
	assert.False(t, store.Snapshot().IsAuthenticated)
}

func TestLogoutClearsLocallyEvenWhenBackendFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // logout notification will fail

	store := seededStore(t)
	refresher := NewRefresher(store, srv.URL+"/refresh", srv.URL+"/logout")

	refresher.Logout(context.Background())
	assert.False(t, store.Snapshot().IsAuthenticated)
	assert.Empty(t, store.RefreshToken())
}

func TestEnsureValid(t *testing.T) {
	fresh := signAccessToken(t, "user-1", time.Now().Add(30*time.Minute))
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"access_token": fresh},
		})
	}))
	defer srv.Close()

	store := seededStore(t) // expired access token
	refresher := NewRefresher(store, srv.URL, "")

	require.NoError(t, refresher.EnsureValid(context.Background(), 30*time.Second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Already valid now: no extra rotation.
	require.NoError(t, refresher.EnsureValid(context.Background(), 30*time.Second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEnsureValidUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := seededStore(t)
	refresher := NewRefresher(store, srv.URL, "")

	err := refresher.EnsureValid(context.Background(), 30*time.Second)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
