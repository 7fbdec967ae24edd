package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if !st.Bool(KeyAutoClearOnServerChange) {
		t.Fatalf("expected autoClearOnServerChange to default true")
	}
	if st.Bool(KeyAutoClearOnTimeout) {
		t.Fatalf("expected autoClearOnTimeout to default false")
	}
	if st.Bool(KeyOnlyRecordEliteDummy) {
		t.Fatalf("expected onlyRecordEliteDummy to default false")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be written with defaults: %v", err)
	}
}

func TestMergeUpdatesKnownKeyAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := st.Merge(map[string]interface{}{KeyOnlyRecordEliteDummy: true}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if !st.Bool(KeyOnlyRecordEliteDummy) {
		t.Fatalf("expected onlyRecordEliteDummy to be true after merge")
	}

	// Reopening from disk should reflect the persisted change.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.Bool(KeyOnlyRecordEliteDummy) {
		t.Fatalf("expected persisted setting to survive reopen")
	}
}

func TestMergePreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := st.Merge(map[string]interface{}{"customFlag": "hello"}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	all := st.All()
	if all["customFlag"] != "hello" {
		t.Fatalf("expected unknown key to round-trip verbatim (exact case), got %+v", all)
	}
}

func TestMergeLeavesUntouchedKeysAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := st.Merge(map[string]interface{}{KeyAutoClearOnTimeout: true}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// autoClearOnServerChange wasn't part of this update and should keep
	// its default value.
	if !st.Bool(KeyAutoClearOnServerChange) {
		t.Fatalf("expected untouched key to keep its default value")
	}
}
