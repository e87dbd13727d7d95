package platform

import (
	"github.com/postpilot/backend/internal/domain/social"
)

// Registry holds the configured adapters keyed by platform
type Registry struct {
	publishers map[social.Platform]social.Publisher
}

// RegistryConfig holds per-platform adapter settings
type RegistryConfig struct {
	Facebook  Config
	Instagram Config
	LinkedIn  Config
	X         Config
	YouTube   Config
}

// NewRegistry builds adapters for all five platforms
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	facebook, err := NewFacebookAdapter(&cfg.Facebook)
	if err != nil {
		return nil, err
	}
	instagram, err := NewInstagramAdapter(&cfg.Instagram)
	if err != nil {
		return nil, err
	}
	linkedin, err := NewLinkedInAdapter(&cfg.LinkedIn)
	if err != nil {
		return nil, err
	}
	x, err := NewXAdapter(&cfg.X)
	if err != nil {
		return nil, err
	}
	youtube, err := NewYouTubeAdapter(&cfg.YouTube)
	if err != nil {
		return nil, err
	}

	return &Registry{
		publishers: map[social.Platform]social.Publisher{
			social.PlatformFacebook:  facebook,
			social.PlatformInstagram: instagram,
			social.PlatformLinkedIn:  linkedin,
			social.PlatformX:         x,
			social.PlatformYouTube:   youtube,
		},
	}, nil
}

// Get returns the adapter for the platform
func (r *Registry) Get(platform social.Platform) (social.Publisher, error) {
	publisher, ok := r.publishers[platform]
	if !ok {
		return nil, social.ErrPlatformNotConfigured
	}
	return publisher, nil
}

// List returns every registered adapter in lane order
func (r *Registry) List() []social.Publisher {
	publishers := make([]social.Publisher, 0, len(r.publishers))
	for _, platform := range social.AllPlatforms {
		if publisher, ok := r.publishers[platform]; ok {
			publishers = append(publishers, publisher)
		}
	}
	return publishers
}

var _ social.PublisherRegistry = (*Registry)(nil)
