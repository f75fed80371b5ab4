package rdstation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/config"
)

func writeToken(t *testing.T, dir string, tok Token) string {
	t.Helper()
	path := filepath.Join(dir, "rd_token.json")
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func freshToken() Token {
	return Token{
		AccessToken:  "live-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

func newTestClient(t *testing.T, baseURL, tokenPath string, pageSize int) *Client {
	t.Helper()
	client, err := New(
		config.RDStationConfig{
			ClientID:     "cid",
			ClientSecret: "secret",
			TokenPath:    tokenPath,
			AccountID:    "acct-1",
			BaseURL:      baseURL,
		},
		config.FetchConfig{PageSize: pageSize, MaxPages: 10},
		zap.NewNop(), nil)
	require.NoError(t, err)
	return client
}

func respondItems(w http.ResponseWriter, items []map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.RDStationConfig{}, config.FetchConfig{}, zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestFetchFailsWithoutToken(t *testing.T) {
	client := newTestClient(t, "http://unused", filepath.Join(t.TempDir(), "missing.json"), 100)
	_, err := client.FetchEmailCampaigns(context.Background(), "2024-01-01", "2024-01-31")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenRefreshPersists(t *testing.T) {
	var refreshCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "refresh_token", payload["grant_type"])
		assert.Equal(t, "old-refresh", payload["refresh_token"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-access",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/platform/emails/campaigns", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
		respondItems(w, []map[string]interface{}{{"id": "c1"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), Token{
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	})
	client := newTestClient(t, srv.URL, tokenPath, 100)

	items, err := client.FetchEmailCampaigns(context.Background(), "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, refreshCalls)

	// Refresh token is carried over when the response omits it, and
	// the new state lands on disk.
	data, err := os.ReadFile(tokenPath)
	require.NoError(t, err)
	var saved Token
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "new-access", saved.AccessToken)
	assert.Equal(t, "old-refresh", saved.RefreshToken)
	assert.Greater(t, saved.ExpiresAt, time.Now().Unix())
}

func TestFetchEmailCampaignsEndpointFallback(t *testing.T) {
	var firstEndpointHits, secondEndpointHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/emails/campaigns", func(w http.ResponseWriter, r *http.Request) {
		firstEndpointHits++
		http.NotFound(w, r)
	})
	mux.HandleFunc("/marketing/email/campaigns", func(w http.ResponseWriter, r *http.Request) {
		secondEndpointHits++
		q := r.URL.Query()
		if q.Get("start_date") != "" {
			// First filter spelling is rejected by this account.
			http.Error(w, "bad filter", http.StatusUnprocessableEntity)
			return
		}
		respondItems(w, []map[string]interface{}{
			{"id": "c1", "sent_at": "2024-03-10T08:00:00Z"},
			{"id": "c2", "sent_at": "2024-03-12T08:00:00Z"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 100)

	items, err := client.FetchEmailCampaigns(context.Background(), "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c1", items[0].ID())
	assert.Equal(t, "2024-03-10", items[0].SendDate("2024-03-31"))

	// A 404 abandons the endpoint after one attempt rather than walking
	// every variant against it.
	assert.Equal(t, 1, firstEndpointHits)
	assert.Greater(t, secondEndpointHits, 1)
}

func TestFetchEmailCampaignsExhaustedYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 100)

	items, err := client.FetchEmailCampaigns(context.Background(), "2024-03-01", "2024-03-31")
	require.NoError(t, err, "exhaustion is empty data, not an error")
	assert.Empty(t, items)
}

func TestFetchEmailCampaignsPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/emails/campaigns", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			respondItems(w, []map[string]interface{}{{"id": "a"}, {"id": "b"}})
		case "2":
			respondItems(w, []map[string]interface{}{{"id": "c"}})
		default:
			respondItems(w, nil)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 2)

	items, err := client.FetchEmailCampaigns(context.Background(), "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[2].ID())
}

func TestFetchEmailCampaignsEmptyFirstPageTriesNextVariant(t *testing.T) {
	var sawUnfiltered bool
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/emails/campaigns", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start_date") != "" || q.Get("sent_at[start]") != "" {
			respondItems(w, nil)
			return
		}
		sawUnfiltered = true
		respondItems(w, []map[string]interface{}{{"id": "x"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 100)

	items, err := client.FetchEmailCampaigns(context.Background(), "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, sawUnfiltered, "empty filtered pages should fall through to the unfiltered variant")
}

func TestFetchEmailMetricsNormalizesKeys(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/emails/campaigns/c9/metrics", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/marketing/email/campaigns/c9/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"delivered":     1500,
			"unique_opens":  320,
			"unique_clicks": 45,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 100)

	m, err := client.FetchEmailMetrics(context.Background(), "c9")
	require.NoError(t, err)
	assert.Equal(t, EmailMetrics{Sends: 1500, Opens: 320, Clicks: 45}, m)
}

func TestFetchEmailMetricsUnknownCampaignIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 100)

	m, err := client.FetchEmailMetrics(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, EmailMetrics{}, m)
}

func TestFetchContactsBareArrayResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/platform/contacts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"uuid": "u1", "lifecycle_stage": "lead"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, t.TempDir(), freshToken())
	client := newTestClient(t, srv.URL, tokenPath, 100)

	items, err := client.FetchContacts(context.Background(), "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "u1", items[0].ID())
}

func TestItemHelpers(t *testing.T) {
	it := Item{"campaignId": float64(42), "created_at": "2024-05-01T10:30:00Z"}
	assert.Equal(t, "42", it.ID())
	assert.Equal(t, "2024-05-01", it.SendDate("2024-06-01"))

	empty := Item{}
	assert.Equal(t, "", empty.ID())
	assert.Equal(t, "2024-06-01", empty.SendDate("2024-06-01"))

	assert.Equal(t, "customer", Item{"lifecycle_stage": "customer"}.Stage())
	assert.Equal(t, "mql", Item{"status": "mql"}.Stage())
	assert.Equal(t, "unknown", empty.Stage())
}
