package tree

import (
	"errors"
	"testing"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tr := New()
	if _, err := tr.AddGroup("entry", "NXentry"); err != nil {
		t.Fatalf("AddGroup(entry) error: %v", err)
	}
	if err := tr.Set("entry/f1", "a"); err != nil {
		t.Fatalf("Set(entry/f1) error: %v", err)
	}
	return tr
}

func TestSetAndGet(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		value   any
		wantErr error
	}{
		{name: "overwrite existing field", path: "entry/f1", value: "b"},
		{name: "create new field", path: "entry/f2", value: 42},
		{name: "leading slash", path: "/entry/f1", value: "c"},
		{name: "missing parent", path: "missing/f1", value: 1, wantErr: ErrNotFound},
		{name: "assign to group", path: "entry", value: 1, wantErr: ErrNotField},
		{name: "parent is field", path: "entry/f1/x", value: 1, wantErr: ErrNotGroup},
		{name: "root", path: "/", value: 1, wantErr: ErrInvalidPath},
		{name: "dot component", path: "entry/../f1", value: 1, wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sampleTree(t)

			err := tr.Set(tt.path, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Set() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() unexpected error: %v", err)
			}

			got, err := tr.Get(tt.path)
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if got != tt.value {
				t.Errorf("Get() = %v, want %v", got, tt.value)
			}
		})
	}
}

func TestGetGroupIsError(t *testing.T) {
	tr := sampleTree(t)
	if _, err := tr.Get("entry"); !errors.Is(err, ErrNotField) {
		t.Errorf("Get(entry) error = %v, want ErrNotField", err)
	}
	if _, err := tr.Get("entry/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(entry/nope) error = %v, want ErrNotFound", err)
	}
}

func TestAddGroupAndRemove(t *testing.T) {
	tr := sampleTree(t)

	if _, err := tr.AddGroup("entry", "NXentry"); !errors.Is(err, ErrExists) {
		t.Errorf("AddGroup(existing) error = %v, want ErrExists", err)
	}
	if _, err := tr.AddGroup("entry/data", "NXdata"); err != nil {
		t.Fatalf("AddGroup(entry/data) error: %v", err)
	}
	if err := tr.Remove("entry/data"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := tr.Lookup("entry/data"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after Remove error = %v, want ErrNotFound", err)
	}
	if err := tr.Remove("entry/data"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestWalkOrder(t *testing.T) {
	tr := sampleTree(t)
	_ = tr.Set("entry/a", 1)
	_, _ = tr.AddGroup("entry/z", "NXdata")

	var paths []string
	tr.Walk(func(path string, n *Node) {
		paths = append(paths, path)
	})

	want := []string{"", "entry", "entry/a", "entry/f1", "entry/z"}
	if len(paths) != len(want) {
		t.Fatalf("Walk() paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	tr := sampleTree(t)
	_ = tr.Set("entry/list", []any{1, 2})
	_ = tr.SetAttr("entry", "units", "mm")

	c := tr.Clone()
	_ = c.Set("entry/f1", "changed")
	_ = c.SetAttr("entry", "units", "m")
	list, _ := c.Get("entry/list")
	list.([]any)[0] = 99

	if v, _ := tr.Get("entry/f1"); v != "a" {
		t.Errorf("original field = %v after clone mutation, want a", v)
	}
	entry, _ := tr.Lookup("entry")
	if entry.Attrs["units"] != "mm" {
		t.Errorf("original attr = %v after clone mutation, want mm", entry.Attrs["units"])
	}
	orig, _ := tr.Get("entry/list")
	if orig.([]any)[0] != 1 {
		t.Errorf("original list[0] = %v after clone mutation, want 1", orig.([]any)[0])
	}
}
