package persistence

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/render"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// MaxConfigNumber is the largest configuration number; the next one is 1.
const MaxConfigNumber = 65535

// AccessoryState is the persisted runtime state of an accessory server.
type AccessoryState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// AccessoryID is the advertised accessory id, generated once.
	AccessoryID string `json:"accessory_id"`

	// ConfigNumber is the advertised configuration number (1..65535).
	ConfigNumber int `json:"config_number"`

	// DatabaseHash is the fingerprint of the database ConfigNumber belongs to.
	DatabaseHash string `json:"database_hash,omitempty"`
}

// AccessoryStateStore manages persistence of accessory state to a JSON file.
type AccessoryStateStore struct {
	mu   sync.Mutex
	path string
}

// NewAccessoryStateStore creates a store backed by path.
func NewAccessoryStateStore(path string) *AccessoryStateStore {
	return &AccessoryStateStore{path: path}
}

// Path returns the state file path.
func (s *AccessoryStateStore) Path() string {
	return s.path
}

// Save writes the state. The file is replaced atomically.
func (s *AccessoryStateStore) Save(state *AccessoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state. It returns nil, nil if the file doesn't exist.
func (s *AccessoryStateStore) Load() (*AccessoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	state := &AccessoryState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("state %s has version %d, newer than %d", s.path, state.Version, StateVersion)
	}

	return state, nil
}

// Clear removes the state file.
func (s *AccessoryStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Fingerprint returns the hex blake2b-256 digest of the rendered database.
func Fingerprint(db *model.Database) string {
	sum := blake2b.Sum256(render.Render(func(b *render.Buffer) {
		render.Database(b, db)
	}))
	return hex.EncodeToString(sum[:])
}

// Reconcile brings state in line with the database fingerprint hash. A nil
// state starts a new one with configuration number 1. The configuration
// number is bumped, wrapping from MaxConfigNumber to 1, when the fingerprint
// changed. It returns true if the state was modified and should be saved.
func Reconcile(state *AccessoryState, hash string) (*AccessoryState, bool) {
	if state == nil {
		return &AccessoryState{
			Version:      StateVersion,
			ConfigNumber: 1,
			DatabaseHash: hash,
		}, true
	}

	changed := false
	if state.ConfigNumber < 1 || state.ConfigNumber > MaxConfigNumber {
		state.ConfigNumber = 1
		changed = true
	}
	if state.DatabaseHash != hash {
		state.ConfigNumber = NextConfigNumber(state.ConfigNumber)
		state.DatabaseHash = hash
		changed = true
	}
	return state, changed
}

// NextConfigNumber returns the configuration number after n.
func NextConfigNumber(n int) int {
	if n >= MaxConfigNumber {
		return 1
	}
	return n + 1
}

// GenerateAccessoryID returns a random "XX:XX:XX:XX:XX:XX" id read from r,
// or from crypto/rand if r is nil.
func GenerateAccessoryID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var b [6]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", fmt.Errorf("generate accessory id: %w", err)
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":"), nil
}
