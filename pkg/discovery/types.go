package discovery

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of accessory servers.
	ServiceType = "_hap._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// ProtocolVersion is advertised in the pv record.
	ProtocolVersion = "1.1"

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default browse duration.
	BrowseTimeout = 5 * time.Second

	// MaxConfigNumber is the largest configuration number; it wraps to 1.
	MaxConfigNumber = 65535
)

// TXT record keys.
const (
	TXTKeyConfigNumber = "c#"
	TXTKeyFeatureFlags = "ff"
	TXTKeyID           = "id"
	TXTKeyModel        = "md"
	TXTKeyProtocol     = "pv"
	TXTKeyStateNumber  = "s#"
	TXTKeyStatusFlags  = "sf"
	TXTKeyCategory     = "ci"
)

// Discovery errors.
var (
	ErrInvalidID       = errors.New("invalid accessory id")
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrInvalidTXT      = errors.New("invalid TXT record")
	ErrNotAdvertising  = errors.New("not advertising")
)

// AccessoryInfo describes the advertised accessory server.
type AccessoryInfo struct {
	// Name is the instance name shown to users.
	Name string

	// Host is the host name reported by browsing.
	Host string

	// Port is the TCP port of the accessory server.
	Port int

	// ID is the accessory id, "XX:XX:XX:XX:XX:XX".
	ID string

	// Model is the model name.
	Model string

	// Category is the accessory category identifier.
	Category int

	// ConfigNumber is the current configuration number (1..65535).
	ConfigNumber int

	// Paired is true once a controller has paired.
	Paired bool
}

// Validate checks the fields required for advertising.
func (i *AccessoryInfo) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingRequired)
	}
	if err := ValidateID(i.ID); err != nil {
		return err
	}
	if i.Port <= 0 || i.Port > 65535 {
		return fmt.Errorf("invalid port %d", i.Port)
	}
	if i.ConfigNumber < 1 || i.ConfigNumber > MaxConfigNumber {
		return fmt.Errorf("invalid configuration number %d", i.ConfigNumber)
	}
	return nil
}

// AccessoryService is an accessory server found by browsing.
type AccessoryService struct {
	InstanceName string
	Host         string
	Port         int
	Addresses    []string
	Info         AccessoryInfo
}

// ValidateID checks the "XX:XX:XX:XX:XX:XX" accessory id format.
func ValidateID(id string) error {
	parts := strings.Split(id, ":")
	if len(parts) != 6 {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, p := range parts {
		if len(p) != 2 || !isHex(p[0]) || !isHex(p[1]) {
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// HostName derives the mDNS host name from a base and the accessory id,
// e.g. "hapspan-0E_7A_11_C2_54_9B".
func HostName(base, id string) string {
	return base + "-" + strings.ToUpper(strings.ReplaceAll(id, ":", "_"))
}
