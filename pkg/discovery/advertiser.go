package discovery

import (
	"context"
	"time"
)

// Advertiser publishes the accessory server on the local network.
type Advertiser interface {
	// Advertise starts or refreshes the advertisement. Calling it again
	// with changed info updates the TXT records in place.
	Advertise(ctx context.Context, info *AccessoryInfo) error

	// Stop withdraws the advertisement.
	Stop()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// HostBase is the prefix of the derived host name.
	HostBase string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		HostBase: "hapspan",
		TTL:      DefaultTTL,
	}
}

// Browser lists accessory servers on the local network.
type Browser interface {
	// Browse emits each accessory server once as it is found. The channel
	// is closed when ctx is done.
	Browse(ctx context.Context) (<-chan *AccessoryService, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	Interface string
}
