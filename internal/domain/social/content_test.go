package social

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_Validate_Text(t *testing.T) {
	t.Run("accepts compliant text", func(t *testing.T) {
		content := Content{Text: "shipping the new release today"}

		assert.Nil(t, content.Validate(PlatformX))
	})

	t.Run("rejects empty content", func(t *testing.T) {
		content := Content{Text: "   "}

		err := content.Validate(PlatformX)

		require.NotNil(t, err)
		assert.Equal(t, "content", err.Field)
	})

	t.Run("rejects text over the platform limit", func(t *testing.T) {
		content := Content{Text: strings.Repeat("a", 281)}

		err := content.Validate(PlatformX)

		require.NotNil(t, err)
		assert.Equal(t, "text", err.Field)
		assert.Contains(t, err.Message, "281")
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		content := Content{Text: strings.Repeat("日", 280)}

		assert.Nil(t, content.Validate(PlatformX))
	})

	t.Run("same text passes on a roomier platform", func(t *testing.T) {
		content := Content{Text: strings.Repeat("a", 281)}

		assert.Nil(t, content.Validate(PlatformFacebook))
	})

	t.Run("rejects unsupported platform", func(t *testing.T) {
		content := Content{Text: "hello"}

		err := content.Validate(Platform("myspace"))

		require.NotNil(t, err)
		assert.Equal(t, "platform", err.Field)
	})
}

func TestContent_Validate_Video(t *testing.T) {
	t.Run("rejects video over the duration limit", func(t *testing.T) {
		content := Content{
			Text: "clip",
			Media: []MediaRef{{
				URL:      "https://media.example/clip.mp4",
				Kind:     MediaKindVideo,
				Format:   "mp4",
				Duration: 100 * time.Second,
			}},
		}

		err := content.Validate(PlatformInstagram)

		require.NotNil(t, err)
		assert.Equal(t, "media[0]", err.Field)
		assert.Contains(t, err.Message, "duration")
	})

	t.Run("same video passes where the limit is higher", func(t *testing.T) {
		content := Content{
			Text: "clip",
			Media: []MediaRef{{
				URL:      "https://media.example/clip.mp4",
				Kind:     MediaKindVideo,
				Format:   "mp4",
				Duration: 100 * time.Second,
			}},
		}

		assert.Nil(t, content.Validate(PlatformX))
	})

	t.Run("rejects video over the size limit", func(t *testing.T) {
		content := Content{
			Media: []MediaRef{{
				URL:       "https://media.example/clip.mp4",
				Kind:      MediaKindVideo,
				Format:    "mp4",
				SizeBytes: 600 << 20,
			}},
		}

		err := content.Validate(PlatformX)

		require.NotNil(t, err)
		assert.Contains(t, err.Message, "size")
	})

	t.Run("unknown duration is not a violation", func(t *testing.T) {
		content := Content{
			Media: []MediaRef{{
				URL:    "https://media.example/clip.mp4",
				Kind:   MediaKindVideo,
				Format: "mp4",
			}},
		}

		assert.Nil(t, content.Validate(PlatformInstagram))
	})
}

func TestContent_Validate_Image(t *testing.T) {
	t.Run("rejects image over the size limit", func(t *testing.T) {
		content := Content{
			Media: []MediaRef{{
				URL:       "https://media.example/banner.png",
				Kind:      MediaKindImage,
				Format:    "png",
				SizeBytes: 9 << 20,
			}},
		}

		err := content.Validate(PlatformInstagram)

		require.NotNil(t, err)
		assert.Contains(t, err.Message, "image size")
	})

	t.Run("rejects format the platform does not accept", func(t *testing.T) {
		content := Content{
			Media: []MediaRef{{
				URL:    "https://media.example/banner.webp",
				Kind:   MediaKindImage,
				Format: "webp",
			}},
		}

		err := content.Validate(PlatformInstagram)

		require.NotNil(t, err)
		assert.Contains(t, err.Message, "format")
	})

	t.Run("rejects aspect ratio outside the window", func(t *testing.T) {
		content := Content{
			Media: []MediaRef{{
				URL:    "https://media.example/pano.jpg",
				Kind:   MediaKindImage,
				Format: "jpg",
				Width:  4000,
				Height: 1000,
			}},
		}

		err := content.Validate(PlatformInstagram)

		require.NotNil(t, err)
		assert.Contains(t, err.Message, "aspect ratio")
	})

	t.Run("rejects unknown media kind", func(t *testing.T) {
		content := Content{
			Media: []MediaRef{{
				URL:  "https://media.example/file.bin",
				Kind: MediaKind("audio"),
			}},
		}

		err := content.Validate(PlatformFacebook)

		require.NotNil(t, err)
		assert.Contains(t, err.Message, "unknown media kind")
	})
}

func TestSpecFor(t *testing.T) {
	t.Run("covers every platform", func(t *testing.T) {
		for _, p := range AllPlatforms {
			spec, ok := SpecFor(p)
			require.True(t, ok, p)
			assert.Equal(t, p, spec.Platform)
			assert.NotEmpty(t, spec.AllowedFormats)
			assert.Greater(t, spec.MaxTextLength, 0)
		}
	})

	t.Run("unknown platform has no spec", func(t *testing.T) {
		_, ok := SpecFor(Platform("myspace"))
		assert.False(t, ok)
	})
}
