package persistence

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hapspan/hapspan-go/pkg/model"
)

func TestAccessoryStateStore(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewAccessoryStateStore(filepath.Join(t.TempDir(), "sub", "state.json"))

		state := &AccessoryState{
			AccessoryID:  "0E:7A:11:C2:54:9B",
			ConfigNumber: 7,
			DatabaseHash: "abc",
		}
		if err := store.Save(state); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if state.Version != StateVersion || state.SavedAt.IsZero() {
			t.Errorf("Save() did not stamp version/time: %+v", state)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.AccessoryID != state.AccessoryID || got.ConfigNumber != 7 || got.DatabaseHash != "abc" {
			t.Errorf("Load() = %+v, want %+v", got, state)
		}
		if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
			t.Error("temporary file left behind")
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewAccessoryStateStore(filepath.Join(t.TempDir(), "missing.json"))
		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %+v, want nil", got)
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewAccessoryStateStore(path).Load(); err == nil {
			t.Error("Load() expected error for corrupt file")
		}
	})

	t.Run("LoadNewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(`{"version":99}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewAccessoryStateStore(path).Load(); err == nil {
			t.Error("Load() expected error for newer version")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewAccessoryStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Save(&AccessoryState{ConfigNumber: 1, SavedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})
}

func buildDatabase(withBrightness bool) *model.Database {
	db := model.NewDatabase(1)
	svc := db.AddAccessory().AddService("43", model.Primary())
	svc.AddCharacteristic("25", model.PermReadWriteNotify, model.BoolValue(false))
	if withBrightness {
		svc.AddCharacteristic("8", model.PermReadWriteNotify, model.IntValue(0))
	}
	return db
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(buildDatabase(false))
	b := Fingerprint(buildDatabase(false))
	c := Fingerprint(buildDatabase(true))

	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}
	if a != b {
		t.Error("identical databases must have identical fingerprints")
	}
	if a == c {
		t.Error("different databases must have different fingerprints")
	}
}

func TestReconcile(t *testing.T) {
	t.Run("NewState", func(t *testing.T) {
		state, changed := Reconcile(nil, "h1")
		if !changed || state.ConfigNumber != 1 || state.DatabaseHash != "h1" {
			t.Errorf("Reconcile(nil) = %+v, %v", state, changed)
		}
	})

	t.Run("Unchanged", func(t *testing.T) {
		state, changed := Reconcile(&AccessoryState{ConfigNumber: 4, DatabaseHash: "h1"}, "h1")
		if changed || state.ConfigNumber != 4 {
			t.Errorf("Reconcile() = %+v, %v", state, changed)
		}
	})

	t.Run("Bumped", func(t *testing.T) {
		state, changed := Reconcile(&AccessoryState{ConfigNumber: 4, DatabaseHash: "h1"}, "h2")
		if !changed || state.ConfigNumber != 5 || state.DatabaseHash != "h2" {
			t.Errorf("Reconcile() = %+v, %v", state, changed)
		}
	})

	t.Run("Wraps", func(t *testing.T) {
		state, _ := Reconcile(&AccessoryState{ConfigNumber: MaxConfigNumber, DatabaseHash: "h1"}, "h2")
		if state.ConfigNumber != 1 {
			t.Errorf("ConfigNumber = %d, want 1", state.ConfigNumber)
		}
	})

	t.Run("RepairsOutOfRange", func(t *testing.T) {
		state, changed := Reconcile(&AccessoryState{ConfigNumber: 0, DatabaseHash: "h1"}, "h1")
		if !changed || state.ConfigNumber != 1 {
			t.Errorf("Reconcile() = %+v, %v", state, changed)
		}
	})
}

func TestGenerateAccessoryID(t *testing.T) {
	id, err := GenerateAccessoryID(bytes.NewReader([]byte{0x0e, 0x7a, 0x11, 0xc2, 0x54, 0x9b}))
	if err != nil {
		t.Fatalf("GenerateAccessoryID() error = %v", err)
	}
	if id != "0E:7A:11:C2:54:9B" {
		t.Errorf("id = %q", id)
	}

	if _, err := GenerateAccessoryID(bytes.NewReader([]byte{1, 2})); err == nil {
		t.Error("expected error on short read")
	}

	random, err := GenerateAccessoryID(nil)
	if err != nil || len(random) != 17 {
		t.Errorf("random id = %q, %v", random, err)
	}
}
