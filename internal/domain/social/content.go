package social

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind distinguishes the two media categories the platform media
// specs put limits on
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaRef points at an already-uploaded media asset together with the
// metadata pre-flight validation needs. SizeBytes may be zero when the
// approval event did not carry it; the enqueue path probes storage to fill
// it in before validating.
type MediaRef struct {
	URL       string        `json:"url"`
	Kind      MediaKind     `json:"kind"`
	Format    string        `json:"format"` // lowercase extension, e.g. "mp4"
	SizeBytes int64         `json:"size_bytes,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
}

// AspectRatio returns width/height, or 0 when dimensions are unknown
func (m MediaRef) AspectRatio() float64 {
	if m.Width <= 0 || m.Height <= 0 {
		return 0
	}
	return float64(m.Width) / float64(m.Height)
}

// Content is the approved payload handed over by the content collaborator.
// The core never mutates it.
type Content struct {
	Text  string     `json:"text"`
	Media []MediaRef `json:"media,omitempty"`
}

// ValidationError describes a pre-flight compliance violation. Entries that
// fail validation are rejected at enqueue and never consume quota.
type ValidationError struct {
	Platform Platform `json:"platform"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Field, e.Message)
}

func newValidationError(platform Platform, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Platform: platform,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Validate checks the content against the platform's declarative media spec.
// It returns the first violation found, or nil when the content is
// compliant. Unknown metadata (zero size, zero dimensions) is not treated as
// a violation; only limits that can be checked are checked.
func (c Content) Validate(platform Platform) *ValidationError {
	spec, ok := SpecFor(platform)
	if !ok {
		return newValidationError(platform, "platform", "unsupported platform")
	}

	if strings.TrimSpace(c.Text) == "" && len(c.Media) == 0 {
		return newValidationError(platform, "content", "content must include text or media")
	}

	if spec.MaxTextLength > 0 && len([]rune(c.Text)) > spec.MaxTextLength {
		return newValidationError(platform, "text",
			"text length %d exceeds platform maximum %d", len([]rune(c.Text)), spec.MaxTextLength)
	}

	for i, media := range c.Media {
		field := fmt.Sprintf("media[%d]", i)

		if media.Format != "" && !spec.AllowsFormat(strings.ToLower(media.Format)) {
			return newValidationError(platform, field,
				"format %q is not accepted (allowed: %s)", media.Format, strings.Join(spec.AllowedFormats, ", "))
		}

		switch media.Kind {
		case MediaKindVideo:
			if media.Duration > 0 && media.Duration > spec.MaxVideoDuration {
				return newValidationError(platform, field,
					"video duration %s exceeds platform maximum %s", media.Duration, spec.MaxVideoDuration)
			}
			if media.SizeBytes > 0 && media.SizeBytes > spec.MaxVideoSizeBytes {
				return newValidationError(platform, field,
					"video size %d bytes exceeds platform maximum %d bytes", media.SizeBytes, spec.MaxVideoSizeBytes)
			}
		case MediaKindImage:
			if media.SizeBytes > 0 && media.SizeBytes > spec.MaxImageSizeBytes {
				return newValidationError(platform, field,
					"image size %d bytes exceeds platform maximum %d bytes", media.SizeBytes, spec.MaxImageSizeBytes)
			}
		default:
			return newValidationError(platform, field, "unknown media kind %q", media.Kind)
		}

		if ratio := media.AspectRatio(); ratio > 0 {
			if ratio < spec.MinAspectRatio || ratio > spec.MaxAspectRatio {
				return newValidationError(platform, field,
					"aspect ratio %.4f outside allowed range [%.4f, %.4f]", ratio, spec.MinAspectRatio, spec.MaxAspectRatio)
			}
		}
	}

	return nil
}
