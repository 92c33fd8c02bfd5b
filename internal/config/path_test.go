package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != filepath.Join("/custom/data", "walkin") {
		t.Fatalf("got %q", got)
	}
}

func TestDefaultDataDirWithoutHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")
	if got := DefaultDataDir(); got != "./walkin-data" {
		t.Fatalf("got %q", got)
	}
}

func TestDataDirFor(t *testing.T) {
	home := filepath.Join("/", "home", "ana")
	cases := []struct {
		goos, local, want string
	}{
		{"linux", "", filepath.Join(home, ".local", "share", "walkin")},
		{"freebsd", "", filepath.Join(home, ".local", "share", "walkin")},
		{"darwin", "", filepath.Join(home, "Library", "Application Support", "Walkin")},
		{"windows", "", filepath.Join(home, "AppData", "Local", "Walkin")},
		{"windows", filepath.Join("/", "appdata"), filepath.Join("/", "appdata", "Walkin")},
	}
	for _, c := range cases {
		if got := dataDirFor(c.goos, home, c.local); got != c.want {
			t.Errorf("%s/%q: got %q want %q", c.goos, c.local, got, c.want)
		}
	}
}
