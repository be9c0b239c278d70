package config

import "testing"

func TestFreezeRejectsOutOfRangeWorkers(t *testing.T) {
	b := DefaultBuilder()
	b.CacheDir = t.TempDir()
	b.Workers = 6
	if _, err := b.Freeze(); err == nil {
		t.Fatal("expected error for workers=6")
	}
	b.Workers = 0
	if _, err := b.Freeze(); err == nil {
		t.Fatal("expected error for workers=0")
	}
}

func TestFreezeAcceptsDefaults(t *testing.T) {
	b := DefaultBuilder()
	b.CacheDir = t.TempDir()
	cfg, err := b.Freeze()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers() != 3 {
		t.Errorf("got workers=%d, want 3", cfg.Workers())
	}
	if !cfg.ExtensionsDirAuto() {
		t.Error("expected auto-detected extensions dir when unset")
	}
}

func TestFreezeRejectsTraversalInCacheDir(t *testing.T) {
	b := DefaultBuilder()
	b.CacheDir = "../../etc"
	if _, err := b.Freeze(); err == nil {
		t.Fatal("expected rejection of traversal in cache_dir")
	}
}

func TestFreezeRejectsBadRetryRange(t *testing.T) {
	b := DefaultBuilder()
	b.CacheDir = t.TempDir()
	b.MaxRetries = 11
	if _, err := b.Freeze(); err == nil {
		t.Fatal("expected error for max_retries=11")
	}
}
