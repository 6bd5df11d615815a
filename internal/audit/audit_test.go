package audit

import (
	"path/filepath"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	entries := []Entry{
		{Entity: "project", ID: "orch", Op: "save"},
		{Entity: "artifact", ID: "orch::s1::spec", Op: "save", Actor: "dev"},
		{Entity: "claim", ID: "1", Op: "status:superseded", Actor: "architect"},
	}
	for _, e := range entries {
		if err := AppendTo(path, e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := ReadAll(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i, e := range entries {
		if got[i].Entity != e.Entity || got[i].ID != e.ID || got[i].Op != e.Op || got[i].Actor != e.Actor {
			t.Errorf("entry %d mismatch: %+v vs %+v", i, got[i], e)
		}
		if got[i].CreatedAt.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
	}
}
