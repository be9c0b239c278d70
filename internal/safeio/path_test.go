package safeio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathRejectsTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"foo/../../bar",
		"foo/%2e%2e/bar",
		"foo/%252e%252e/bar",
		"foo\x00bar",
		"foo|bar",
		"foo;bar",
		"foo`bar`",
		"foo\nbar",
		"foo\rbar",
	}
	for _, c := range cases {
		if _, err := ValidatePath(c, PathOptions{AllowAbsolute: false, Base: t.TempDir()}); err == nil {
			t.Errorf("ValidatePath(%q) = nil error, want rejection", c)
		}
	}
}

func TestValidatePathRejectsSystemRoots(t *testing.T) {
	cases := []string{"/etc/passwd", "/sys/kernel", "/proc/self/environ"}
	for _, c := range cases {
		if _, err := ValidatePath(c, PathOptions{AllowAbsolute: true}); err == nil {
			t.Errorf("ValidatePath(%q) = nil error, want rejection", c)
		}
	}
}

func TestValidatePathAcceptsBenignAbsolute(t *testing.T) {
	dir := t.TempDir()
	p, err := ValidatePath(dir, PathOptions{AllowAbsolute: true})
	if err != nil {
		t.Fatalf("ValidatePath(%q): %v", dir, err)
	}
	if p.String() != filepath.Clean(dir) {
		t.Errorf("got %q, want %q", p.String(), filepath.Clean(dir))
	}
}

func TestValidatePathConfinesToBase(t *testing.T) {
	base := t.TempDir()
	p, err := ValidatePath("child/grand", PathOptions{Base: base})
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
	if !strings.HasPrefix(p.String(), base) {
		t.Errorf("resolved path %q escapes base %q", p.String(), base)
	}

	if _, err := ValidatePath("../escape", PathOptions{Base: base}); err == nil {
		t.Error("expected rejection of path escaping base via traversal")
	}
}

func TestValidatePathMustExist(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")
	if _, err := ValidatePath(missing, PathOptions{AllowAbsolute: true, MustExist: true}); err == nil {
		t.Error("expected error for nonexistent required path")
	}

	existing := filepath.Join(dir, "present")
	if err := os.WriteFile(existing, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ValidatePath(existing, PathOptions{AllowAbsolute: true, MustExist: true}); err != nil {
		t.Errorf("unexpected error for existing path: %v", err)
	}
}
