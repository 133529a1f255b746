package database

import (
	"slices"
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_rates.up.sql":  {Data: []byte("SELECT 1")},
		"001_init.up.sql":   {Data: []byte("SELECT 1")},
		"001_init.down.sql": {Data: []byte("SELECT 1")},
		"003_more.up.sql":   {Data: []byte("SELECT 1")},
		"README.md":         {Data: []byte("notes")},
		"nested/004.up.sql": {Data: []byte("SELECT 1")},
	}

	got, err := pendingMigrations(fsys, []string{"002_rates.up.sql"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_init.up.sql", "003_more.up.sql"}
	if !slices.Equal(got, want) {
		t.Errorf("pending = %v, want %v", got, want)
	}
}
