package config

import (
	"path/filepath"
	"testing"
)

func TestRegistryRoundTrip(t *testing.T) {
	// Use a temp dir as HOME so we don't modify the real registry.
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	regPath := RegistryPath()
	if want := filepath.Join(tmpHome, registryFileName); regPath != want {
		t.Errorf("RegistryPath() = %q, want %q", regPath, want)
	}

	if entries := ListProjects(); len(entries) != 0 {
		t.Errorf("ListProjects() = %d entries, want 0", len(entries))
	}

	if err := RegisterProject("billing", "/srv/billing", "/srv/billing/.daotrace"); err != nil {
		t.Fatalf("RegisterProject() error: %v", err)
	}
	if err := RegisterProject("accounts", "/srv/accounts", "/srv/accounts/.daotrace"); err != nil {
		t.Fatalf("RegisterProject() error: %v", err)
	}

	entries := ListProjects()
	if len(entries) != 2 {
		t.Fatalf("ListProjects() = %d entries, want 2", len(entries))
	}
	if entries[0].Name != "accounts" || entries[1].Name != "billing" {
		t.Errorf("entries not sorted by root: %+v", entries)
	}

	// Re-registering a root updates it in place.
	if err := RegisterProject("billing-v2", "/srv/billing", "/tmp/store"); err != nil {
		t.Fatalf("RegisterProject() error: %v", err)
	}
	entries = ListProjects()
	if len(entries) != 2 {
		t.Fatalf("ListProjects() = %d entries after update, want 2", len(entries))
	}
	e, ok := FindProject("billing-v2")
	if !ok {
		t.Fatal("FindProject() did not find the renamed project")
	}
	if e.Store != "/tmp/store" {
		t.Errorf("Store = %q, want %q", e.Store, "/tmp/store")
	}
	if _, ok := FindProject("billing"); ok {
		t.Error("old name still registered")
	}
}

func TestRegisterProjectDefaultName(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := RegisterProject("", "/home/user/shop", "/home/user/shop/.daotrace"); err != nil {
		t.Fatalf("RegisterProject() error: %v", err)
	}
	entries := ListProjects()
	if len(entries) != 1 {
		t.Fatalf("ListProjects() = %d entries, want 1", len(entries))
	}
	if entries[0].Name != "shop" {
		t.Errorf("Name = %q, want %q", entries[0].Name, "shop")
	}
}

func TestLookupProject(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := RegisterProject("mono", "/repo", "/repo/.daotrace"); err != nil {
		t.Fatal(err)
	}
	if err := RegisterProject("orders", "/repo/orders", "/repo/orders/.daotrace"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{path: "/repo", want: "mono", wantOK: true},
		{path: "/repo/users/src", want: "mono", wantOK: true},
		{path: "/repo/orders/src/main", want: "orders", wantOK: true},
		{path: "/repository", wantOK: false},
		{path: "/elsewhere", wantOK: false},
	}
	for _, tt := range tests {
		entry, ok := LookupProject(tt.path)
		if ok != tt.wantOK {
			t.Errorf("LookupProject(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			continue
		}
		if ok && entry.Name != tt.want {
			t.Errorf("LookupProject(%q) = %q, want %q", tt.path, entry.Name, tt.want)
		}
	}
}
