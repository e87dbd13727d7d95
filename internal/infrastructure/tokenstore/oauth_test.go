package tokenstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/backend/internal/domain/social"
)

func TestHTTPRefresher_Refresh(t *testing.T) {
	ctx := context.Background()

	newRefresher := func(serverURL string) *HTTPRefresher {
		return NewHTTPRefresher(map[social.Platform]OAuthEndpoint{
			social.PlatformX: {
				TokenURL:     serverURL + "/oauth2/token",
				ClientID:     "client-id",
				ClientSecret: "client-secret",
			},
		}, 5*time.Second)
	}

	t.Run("performs a refresh token grant", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/oauth2/token", r.URL.Path)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
			assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
			_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":7200,"token_type":"bearer"}`))
		}))
		defer server.Close()

		token, err := newRefresher(server.URL).Refresh(ctx, social.PlatformX, "old-refresh")
		require.NoError(t, err)
		assert.Equal(t, "new-access", token.AccessToken)
		assert.Equal(t, "new-refresh", token.RefreshToken)
		assert.Equal(t, int64(7200), token.ExpiresIn)
	})

	t.Run("invalid_grant is reported as revoked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"token revoked by user"}`))
		}))
		defer server.Close()

		_, err := newRefresher(server.URL).Refresh(ctx, social.PlatformX, "old-refresh")
		require.Error(t, err)

		var refreshErr *RefreshError
		require.ErrorAs(t, err, &refreshErr)
		assert.True(t, refreshErr.Revoked())
		assert.Equal(t, "invalid_grant", refreshErr.Code)
		assert.Equal(t, "token revoked by user", refreshErr.Message)
	})

	t.Run("upstream outage is not revocation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newRefresher(server.URL).Refresh(ctx, social.PlatformX, "old-refresh")
		require.Error(t, err)

		var refreshErr *RefreshError
		require.ErrorAs(t, err, &refreshErr)
		assert.False(t, refreshErr.Revoked())
	})

	t.Run("rejects an empty access token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
		}))
		defer server.Close()

		_, err := newRefresher(server.URL).Refresh(ctx, social.PlatformX, "old-refresh")
		assert.Error(t, err)
	})

	t.Run("unconfigured platform is rejected", func(t *testing.T) {
		_, err := newRefresher("http://127.0.0.1:1").Refresh(ctx, social.PlatformInstagram, "old-refresh")
		assert.ErrorIs(t, err, social.ErrPlatformNotConfigured)
	})
}
