package social

import "time"

// MediaSpec declares the content limits a platform enforces server-side.
// It is used for pre-flight validation before any quota reservation or
// network call, and by the adapters as configuration.
type MediaSpec struct {
	Platform          Platform
	MaxVideoDuration  time.Duration
	MaxVideoSizeBytes int64
	MaxImageSizeBytes int64
	MinAspectRatio    float64 // width / height
	MaxAspectRatio    float64
	AllowedFormats    []string
	MaxTextLength     int
}

const (
	mib int64 = 1 << 20
	gib int64 = 1 << 30
)

// mediaSpecs is the declarative per-platform limit table. Values track the
// published platform documentation; adjust here when a platform changes its
// upload limits.
var mediaSpecs = map[Platform]MediaSpec{
	PlatformFacebook: {
		Platform:          PlatformFacebook,
		MaxVideoDuration:  240 * time.Minute,
		MaxVideoSizeBytes: 10 * gib,
		MaxImageSizeBytes: 30 * mib,
		MinAspectRatio:    0.5625, // 9:16
		MaxAspectRatio:    1.91,
		AllowedFormats:    []string{"jpg", "jpeg", "png", "gif", "mp4", "mov"},
		MaxTextLength:     63206,
	},
	PlatformInstagram: {
		Platform:          PlatformInstagram,
		MaxVideoDuration:  90 * time.Second,
		MaxVideoSizeBytes: 100 * mib,
		MaxImageSizeBytes: 8 * mib,
		MinAspectRatio:    0.8, // 4:5
		MaxAspectRatio:    1.91,
		AllowedFormats:    []string{"jpg", "jpeg", "png", "mp4", "mov"},
		MaxTextLength:     2200,
	},
	PlatformLinkedIn: {
		Platform:          PlatformLinkedIn,
		MaxVideoDuration:  10 * time.Minute,
		MaxVideoSizeBytes: 5 * gib,
		MaxImageSizeBytes: 10 * mib,
		MinAspectRatio:    0.4167,
		MaxAspectRatio:    2.4,
		AllowedFormats:    []string{"jpg", "jpeg", "png", "gif", "mp4"},
		MaxTextLength:     3000,
	},
	PlatformX: {
		Platform:          PlatformX,
		MaxVideoDuration:  140 * time.Second,
		MaxVideoSizeBytes: 512 * mib,
		MaxImageSizeBytes: 5 * mib,
		MinAspectRatio:    0.3333, // 1:3
		MaxAspectRatio:    3.0,
		AllowedFormats:    []string{"jpg", "jpeg", "png", "gif", "webp", "mp4"},
		MaxTextLength:     280,
	},
	PlatformYouTube: {
		Platform:          PlatformYouTube,
		MaxVideoDuration:  12 * time.Hour,
		MaxVideoSizeBytes: 256 * gib,
		MaxImageSizeBytes: 2 * mib, // thumbnails
		MinAspectRatio:    0.5625,
		MaxAspectRatio:    1.7778, // 16:9
		AllowedFormats:    []string{"mp4", "mov", "avi", "webm"},
		MaxTextLength:     5000,
	},
}

// SpecFor returns the media spec for a platform. The boolean is false for
// unknown platforms.
func SpecFor(platform Platform) (MediaSpec, bool) {
	spec, ok := mediaSpecs[platform]
	return spec, ok
}

// AllowsFormat reports whether the spec permits the given media format
func (s MediaSpec) AllowsFormat(format string) bool {
	for _, f := range s.AllowedFormats {
		if f == format {
			return true
		}
	}
	return false
}
