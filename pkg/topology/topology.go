package topology

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hapspan/hapspan-go/pkg/model"
)

// Errors returned while building a database.
var (
	ErrNoAccessories  = errors.New("no accessories defined")
	ErrNoServices     = errors.New("accessory has no services")
	ErrUnknownType    = errors.New("unknown type")
	ErrMissingFormat  = errors.New("raw type needs format and perms")
	ErrInvalidAutoOff = errors.New("autoOff requires a bool characteristic")
)

// RawTopology is the YAML accessory description.
type RawTopology struct {
	// Category is the advertised category name (e.g. Lightbulb).
	Category string `yaml:"category"`

	Accessories []RawAccessory `yaml:"accessories"`
}

// RawAccessory is one accessory in the description.
type RawAccessory struct {
	Services []RawService `yaml:"services"`
}

// RawService is one service of an accessory.
type RawService struct {
	Type            string              `yaml:"type"`
	Primary         bool                `yaml:"primary"`
	Hidden          bool                `yaml:"hidden"`
	Characteristics []RawCharacteristic `yaml:"characteristics"`
}

// RawCharacteristic is one characteristic of a service. Format and Perms
// override the catalog defaults.
type RawCharacteristic struct {
	Type        string    `yaml:"type"`
	Format      string    `yaml:"format"`
	Perms       []string  `yaml:"perms"`
	Value       yaml.Node `yaml:"value"`
	Description string    `yaml:"description"`
	Range       *RawRange `yaml:"range"`
	AutoOff     string    `yaml:"autoOff"`
}

// RawRange is a numeric range.
type RawRange struct {
	Min  int `yaml:"min"`
	Max  int `yaml:"max"`
	Step int `yaml:"step"`
}

// Parse parses a YAML accessory description.
func Parse(data []byte) (*RawTopology, error) {
	var t RawTopology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return &t, nil
}

// Load reads and parses a YAML accessory description from a file.
func Load(path string) (*RawTopology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Build creates a database with the given number of connection slots from
// the description. The returned database is not sealed so that update hooks
// can still be attached.
func (t *RawTopology) Build(slots int) (*model.Database, error) {
	if len(t.Accessories) == 0 {
		return nil, ErrNoAccessories
	}

	db := model.NewDatabase(slots)
	for i, ra := range t.Accessories {
		path := fmt.Sprintf("accessories[%d]", i)
		if len(ra.Services) == 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrNoServices)
		}
		acc := db.AddAccessory()
		for j, rs := range ra.Services {
			if err := buildService(acc, rs); err != nil {
				return nil, fmt.Errorf("%s.services[%d]: %w", path, j, err)
			}
		}
	}
	return db, nil
}

// CategoryID returns the advertised category. Without an explicit category a
// multi-accessory description is a bridge.
func (t *RawTopology) CategoryID() (int, error) {
	if t.Category != "" {
		id, ok := LookupCategory(t.Category)
		if !ok {
			return 0, fmt.Errorf("category: %w %q", ErrUnknownType, t.Category)
		}
		return id, nil
	}
	if len(t.Accessories) > 1 {
		id, _ := LookupCategory("Bridge")
		return id, nil
	}
	return CategoryOther, nil
}

func buildService(acc *model.Accessory, rs RawService) error {
	typ, ok := LookupService(rs.Type)
	if !ok {
		if !isRawType(rs.Type) {
			return fmt.Errorf("%w %q", ErrUnknownType, rs.Type)
		}
		typ = rs.Type
	}

	var opts []model.ServiceOption
	if rs.Primary {
		opts = append(opts, model.Primary())
	}
	if rs.Hidden {
		opts = append(opts, model.Hidden())
	}
	svc := acc.AddService(typ, opts...)

	for k, rc := range rs.Characteristics {
		if err := buildCharacteristic(svc, rc); err != nil {
			return fmt.Errorf("characteristics[%d]: %w", k, err)
		}
	}
	return nil
}

func buildCharacteristic(svc *model.Service, rc RawCharacteristic) error {
	ct, ok := LookupCharacteristic(rc.Type)
	if !ok {
		if !isRawType(rc.Type) {
			return fmt.Errorf("%w %q", ErrUnknownType, rc.Type)
		}
		if rc.Format == "" || rc.Perms == nil {
			return fmt.Errorf("type %q: %w", rc.Type, ErrMissingFormat)
		}
		ct = CharacteristicType{Type: rc.Type}
	}

	if rc.Format != "" {
		f, err := ParseFormat(rc.Format)
		if err != nil {
			return err
		}
		ct.Format = f
	}
	if rc.Perms != nil {
		p, err := model.ParsePerms(rc.Perms)
		if err != nil {
			return err
		}
		ct.Perms = p
	}

	initial := model.ZeroValue(ct.Format)
	if rc.Value.Kind != 0 {
		if rc.Value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value must be a scalar", rc.Value.Line)
		}
		v, err := model.ParseValue(ct.Format, rc.Value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", rc.Value.Line, err)
		}
		initial = v
	}

	var opts []model.CharacteristicOption
	if rc.Description != "" {
		opts = append(opts, model.WithDescription(rc.Description))
	}
	if rc.AutoOff != "" {
		d, err := time.ParseDuration(rc.AutoOff)
		if err != nil {
			return fmt.Errorf("autoOff: %w", err)
		}
		if ct.Format != model.FormatBool || d <= 0 {
			return ErrInvalidAutoOff
		}
		opts = append(opts, model.WithAutoOff(d))
	}

	c := svc.AddCharacteristic(ct.Type, ct.Perms, initial, opts...)

	rng := ct.Range
	if rc.Range != nil {
		rng = &model.Range{Min: rc.Range.Min, Max: rc.Range.Max, Step: rc.Range.Step}
	}
	if rng != nil {
		c.AttachRange(rng.Min, rng.Max, rng.Step)
	}
	return nil
}

// isRawType reports whether s looks like a HAP type id: a short hex id or a
// full UUID.
func isRawType(s string) bool {
	if s == "" {
		return false
	}
	hex := strings.ReplaceAll(s, "-", "")
	if len(hex) > 8 && len(hex) != 32 {
		return false
	}
	for _, r := range hex {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
