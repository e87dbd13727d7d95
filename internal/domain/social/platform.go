package social

// Platform identifies a supported social-media platform.
// The set is sealed: adapters, lane scheduling and spec tables are keyed by
// it, and AllPlatforms is the single source of truth for iteration.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformX         Platform = "x"
	PlatformYouTube   Platform = "youtube"
)

// AllPlatforms lists every supported platform in lane order.
var AllPlatforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformX,
	PlatformYouTube,
}

// String returns the string representation of the platform
func (p Platform) String() string {
	return string(p)
}

// IsValid returns true if the platform is one of the supported five
func (p Platform) IsValid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformLinkedIn, PlatformX, PlatformYouTube:
		return true
	}
	return false
}

// DisplayName returns a human-readable platform name
func (p Platform) DisplayName() string {
	switch p {
	case PlatformFacebook:
		return "Facebook"
	case PlatformInstagram:
		return "Instagram"
	case PlatformLinkedIn:
		return "LinkedIn"
	case PlatformX:
		return "X"
	case PlatformYouTube:
		return "YouTube"
	default:
		return string(p)
	}
}
