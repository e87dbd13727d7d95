package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/backend/internal/domain/social"
)

func TestInstagramAdapter_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a container then publishes it", func(t *testing.T) {
		var paths []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			switch r.URL.Path {
			case "/acct-9/media":
				var payload instagramContainerRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "sunset", payload.Caption)
				assert.Equal(t, "https://cdn.example.com/a.jpg", payload.ImageURL)
				_, _ = w.Write([]byte(`{"id":"container-1"}`))
			case "/acct-9/media_publish":
				var payload instagramPublishRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "container-1", payload.CreationID)
				_, _ = w.Write([]byte(`{"id":"ig-post-5"}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		adapter, err := NewInstagramAdapter(testConfig(server.URL))
		require.NoError(t, err)

		result, err := adapter.Publish(ctx, &social.PublishRequest{
			AccessToken:       "tok",
			ExternalAccountID: "acct-9",
			Content: social.Content{
				Text: "sunset",
				Media: []social.MediaRef{
					{URL: "https://cdn.example.com/a.jpg", Kind: social.MediaKindImage, Format: "jpg"},
				},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "ig-post-5", result.PlatformPostID)
		assert.Equal(t, []string{"/acct-9/media", "/acct-9/media_publish"}, paths)
	})

	t.Run("container failure stops before the publish step", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"unsupported aspect ratio","code":36003}}`))
		}))
		defer server.Close()

		adapter, err := NewInstagramAdapter(testConfig(server.URL))
		require.NoError(t, err)

		_, err = adapter.Publish(ctx, &social.PublishRequest{
			AccessToken:       "tok",
			ExternalAccountID: "acct-9",
			Content: social.Content{
				Media: []social.MediaRef{
					{URL: "https://cdn.example.com/a.jpg", Kind: social.MediaKindImage, Format: "jpg"},
				},
			},
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)

		pubErr := social.ClassifyPublishError(social.PlatformInstagram, err)
		assert.Equal(t, social.ErrorValidation, pubErr.Kind)
		assert.Equal(t, "unsupported aspect ratio", pubErr.Message)
	})
}

func TestRegistry(t *testing.T) {
	cfg := RegistryConfig{
		Facebook:  Config{BaseURL: "https://graph.facebook.com/v21.0", TimeoutSeconds: 5},
		Instagram: Config{BaseURL: "https://graph.instagram.com/v21.0", TimeoutSeconds: 5},
		LinkedIn:  Config{BaseURL: "https://api.linkedin.com/v2", TimeoutSeconds: 5},
		X:         Config{BaseURL: "https://api.x.com/2", TimeoutSeconds: 5},
		YouTube:   Config{BaseURL: "https://www.googleapis.com/youtube/v3", TimeoutSeconds: 5},
	}

	registry, err := NewRegistry(cfg)
	require.NoError(t, err)

	t.Run("resolves every platform", func(t *testing.T) {
		for _, platform := range social.AllPlatforms {
			publisher, err := registry.Get(platform)
			require.NoError(t, err)
			assert.Equal(t, platform, publisher.Platform())
		}
	})

	t.Run("rejects an unknown platform", func(t *testing.T) {
		_, err := registry.Get(social.Platform("myspace"))
		assert.ErrorIs(t, err, social.ErrPlatformNotConfigured)
	})

	t.Run("lists adapters in lane order", func(t *testing.T) {
		publishers := registry.List()
		require.Len(t, publishers, len(social.AllPlatforms))
		for i, platform := range social.AllPlatforms {
			assert.Equal(t, platform, publishers[i].Platform())
		}
	})
}
