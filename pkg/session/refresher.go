package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ai-chat-gateway/pkg/token"

	"golang.org/x/sync/singleflight"
)

// ErrUnauthenticated is the only signal this package reports upward for
// verification or refresh failures. Raw backend and crypto detail stays here.
var ErrUnauthenticated = errors.New("unauthenticated")

// refreshRequest is the wire contract of the refresh boundary.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse unwraps the gateway's response envelope; only the rotated
// pair matters here.
type refreshResponse struct {
	Data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token,omitempty"`
	} `json:"data"`
}

// Refresher rotates the token pair against the refresh boundary.
//
// Concurrent Refresh calls are collapsed into a single network rotation
// (single-flight) whose outcome every caller shares. This is a hard
// invariant, not an optimization: the boundary invalidates the prior refresh
// token on each rotation, so a second concurrent attempt carrying the stale
// token would deterministically fail.
type Refresher struct {
	store      *Store
	client     *http.Client
	refreshURL string
	logoutURL  string
	group      singleflight.Group
}

func NewRefresher(store *Store, refreshURL, logoutURL string) *Refresher {
	return &Refresher{
		store:      store,
		client:     &http.Client{Timeout: 15 * time.Second},
		refreshURL: refreshURL,
		logoutURL:  logoutURL,
	}
}

// Refresh rotates the pair. Returns true when the store now holds a fresh
// access token. On any failure the store is cleared entirely (equivalent to
// logout) and false is returned — never a silent retry loop.
func (r *Refresher) Refresh(ctx context.Context) bool {
	v, _, _ := r.group.Do("refresh", func() (interface{}, error) {
		return r.doRefresh(ctx), nil
	})
	return v.(bool)
}

func (r *Refresher) doRefresh(ctx context.Context) bool {
	refreshToken := r.store.RefreshToken()
	if refreshToken == "" {
		r.store.Clear()
		return false
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		r.store.Clear()
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL, bytes.NewReader(body))
	if err != nil {
		r.store.Clear()
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.store.Clear()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.store.Clear()
		return false
	}

	var res refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		r.store.Clear()
		return false
	}

	// The boundary just handed this token back over an authenticated
	// channel, which is the provenance DecodeUnsafe requires.
	claims := token.DecodeUnsafe(res.Data.AccessToken)
	if claims == nil || claims.TokenType != token.TokenTypeAccess {
		r.store.Clear()
		return false
	}

	r.store.Rotate(res.Data.AccessToken, res.Data.RefreshToken, claims)
	return true
}

// EnsureValid refreshes when the current session is absent or expires within
// the buffer. Callers opening a streaming connection go through here.
func (r *Refresher) EnsureValid(ctx context.Context, buffer time.Duration) error {
	snap := r.store.Snapshot()
	if snap.IsAuthenticated && time.Now().Add(buffer).Before(snap.ExpiresAt) {
		return nil
	}
	if !r.Refresh(ctx) {
		return ErrUnauthenticated
	}
	return nil
}

// Logout notifies the boundary best-effort and clears the local session.
// The notification may fail; local clearing always happens regardless.
func (r *Refresher) Logout(ctx context.Context) {
	refreshToken := r.store.RefreshToken()
	defer r.store.Clear()

	if refreshToken == "" || r.logoutURL == "" {
		return
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.logoutURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
