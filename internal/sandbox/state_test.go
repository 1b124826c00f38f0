package sandbox

import (
	"testing"
)

func TestState_SnapshotIsDeepCopy(t *testing.T) {
	state := NewState(nil)
	state.Set("params", map[string]any{"id": "42"})
	state.Set("tags", []string{"a", "b"})

	snap := state.Snapshot()

	// Mutate the live state after snapshotting.
	v, _ := state.Get("params")
	v.(map[string]any)["id"] = "mutated"
	tags, _ := state.Get("tags")
	tags.([]string)[0] = "mutated"

	if got := snap["params"].(map[string]any)["id"]; got != "42" {
		t.Errorf("snapshot map value = %v, want 42", got)
	}
	if got := snap["tags"].([]string)[0]; got != "a" {
		t.Errorf("snapshot slice value = %v, want a", got)
	}
}

func TestState_RestoreReplacesKeySpace(t *testing.T) {
	state := NewState(nil)
	state.Set("a", 1)
	snap := state.Snapshot()

	state.Set("a", 2)
	state.Set("b", 3)
	state.Restore(snap)

	if v, _ := state.Get("a"); v != 1 {
		t.Errorf("a = %v, want 1", v)
	}
	if _, ok := state.Get("b"); ok {
		t.Error("b should not survive restore")
	}
}

func TestState_RestoreDetachesFromSnapshot(t *testing.T) {
	state := NewState(nil)
	state.Set("params", map[string]any{"id": "42"})
	snap := state.Snapshot()

	state.Restore(snap)

	// Mutating the restored state must not corrupt the snapshot, which the
	// owner may restore again later.
	v, _ := state.Get("params")
	v.(map[string]any)["id"] = "mutated"

	if got := snap["params"].(map[string]any)["id"]; got != "42" {
		t.Errorf("snapshot corrupted after restore: %v", got)
	}
}

func TestState_ResetKeepsAllowlist(t *testing.T) {
	state := NewState([]string{"server.name", "server.version"})
	state.Set("server.name", "loopguard")
	state.Set("server.version", "1.0")
	state.Set("request.body", []byte("payload"))
	state.Set("request.query", map[string]any{"id": "1"})

	state.Reset()

	if v, _ := state.Get("server.name"); v != "loopguard" {
		t.Errorf("allowlisted key lost on reset: %v", v)
	}
	if _, ok := state.Get("request.body"); ok {
		t.Error("transient key should be cleared on reset")
	}
	if state.Len() != 2 {
		t.Errorf("len after reset = %d, want 2", state.Len())
	}
}

func TestDeepCopy_Shapes(t *testing.T) {
	nested := map[string]any{
		"list":  []any{map[string]any{"k": "v"}},
		"bytes": []byte{1, 2, 3},
		"n":     7,
	}

	copied := deepCopy(nested).(map[string]any)

	nested["list"].([]any)[0].(map[string]any)["k"] = "mutated"
	nested["bytes"].([]byte)[0] = 9

	if got := copied["list"].([]any)[0].(map[string]any)["k"]; got != "v" {
		t.Errorf("nested map in slice = %v, want v", got)
	}
	if got := copied["bytes"].([]byte)[0]; got != 1 {
		t.Errorf("bytes[0] = %d, want 1", got)
	}
	if copied["n"] != 7 {
		t.Errorf("scalar = %v, want 7", copied["n"])
	}
}
