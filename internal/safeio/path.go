// Package safeio protects every boundary crossing that touches
// user-controlled paths, strings, or network payloads.
package safeio

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vscan/vscan/internal/vscanerr"
)

// ValidatedPath is a newtype produced only by ValidatePath. Code paths that
// accept a raw user string as a filesystem path must not exist outside
// this package.
type ValidatedPath struct {
	value string
}

// String returns the underlying absolute, normalized path.
func (p ValidatedPath) String() string { return p.value }

// PathPurpose documents why a path is being validated, for error messages.
type PathPurpose string

const (
	PurposeExtensionsDir PathPurpose = "extensions directory"
	PurposeCacheDir      PathPurpose = "cache directory"
	PurposeManifest      PathPurpose = "manifest file"
)

// PathOptions configures ValidatePath.
type PathOptions struct {
	// AllowAbsolute permits absolute and tilde-expanded input paths. When
	// false, Base must be set and the result is confined under it.
	AllowAbsolute bool
	// Base confines a relative path when AllowAbsolute is false.
	Base string
	// MustExist requires the resolved path to exist on disk.
	MustExist bool
	Purpose   PathPurpose
}

// denylistRoots are system roots that validated paths must never resolve
// into, compared case-insensitively on filesystems that fold case.
var denylistRoots = []string{
	"/etc", "/sys", "/proc", "/System",
	`C:\Windows`, `C:\Program Files`, `C:\Program Files (x86)`,
}

// controlRejects are bytes that must never appear in a raw path string.
const controlRejects = "\x00|;`\n\r"

// ValidatePath validates and normalizes a user-supplied path
func ValidatePath(input string, opts PathOptions) (ValidatedPath, error) {
	if input == "" {
		return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput, fmt.Errorf("path is empty"))
	}

	if err := rejectRawBytes(input); err != nil {
		return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput, err)
	}

	if err := rejectEncodedTraversal(input); err != nil {
		return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput, err)
	}

	if containsTraversalSegment(input) {
		return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput,
			fmt.Errorf("path %q contains a parent-directory traversal segment", Sanitize(input, ContextError)))
	}

	expanded, err := expandTilde(input)
	if err != nil {
		return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput, err)
	}

	var resolved string
	if filepath.IsAbs(expanded) {
		if !opts.AllowAbsolute {
			return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput,
				fmt.Errorf("absolute path not permitted for %s", opts.Purpose))
		}
		resolved = filepath.Clean(expanded)
	} else {
		if opts.Base == "" {
			return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput,
				fmt.Errorf("relative path requires a base directory for %s", opts.Purpose))
		}
		resolved = filepath.Clean(filepath.Join(opts.Base, expanded))
		if !strings.HasPrefix(resolved, filepath.Clean(opts.Base)+string(filepath.Separator)) && resolved != filepath.Clean(opts.Base) {
			return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput,
				fmt.Errorf("path escapes base directory for %s", opts.Purpose))
		}
	}

	if err := rejectDenylistedRoot(resolved); err != nil {
		return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput, err)
	}

	if opts.MustExist {
		if _, err := os.Stat(resolved); err != nil {
			return ValidatedPath{}, vscanerr.New(vscanerr.InvalidInput,
				fmt.Errorf("%s does not exist: %s", opts.Purpose, Sanitize(resolved, ContextError)))
		}
	}

	return ValidatedPath{value: resolved}, nil
}

func rejectRawBytes(input string) error {
	if strings.ContainsAny(input, controlRejects) {
		return fmt.Errorf("path contains a disallowed control or shell byte")
	}
	for _, r := range input {
		if r < 0x20 && r != '\t' {
			return fmt.Errorf("path contains a disallowed control character")
		}
	}
	return nil
}

// rejectEncodedTraversal rejects URL-encoded traversal sequences such as
// %2e%2e and double-encoded %252e%252e, in any case combination.
func rejectEncodedTraversal(input string) error {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e%252e") {
		return fmt.Errorf("path contains an encoded traversal sequence")
	}
	// Defensively decode once and re-check for a literal ".." after decoding,
	// catching mixed-encoding forms like "%2e.".
	if decoded, err := url.QueryUnescape(input); err == nil && decoded != input {
		if containsTraversalSegment(decoded) {
			return fmt.Errorf("path contains an encoded traversal sequence")
		}
	}
	return nil
}

func containsTraversalSegment(input string) bool {
	normalized := strings.ReplaceAll(input, "\\", "/")
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func expandTilde(input string) (string, error) {
	if input != "~" && !strings.HasPrefix(input, "~/") && !strings.HasPrefix(input, `~\`) {
		return input, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	if input == "~" {
		return home, nil
	}
	return filepath.Join(home, input[2:]), nil
}

func rejectDenylistedRoot(resolved string) error {
	cmp := resolved
	caseInsensitive := runtime.GOOS == "windows" || runtime.GOOS == "darwin"
	if caseInsensitive {
		cmp = strings.ToLower(cmp)
	}
	for _, root := range denylistRoots {
		r := root
		if caseInsensitive {
			r = strings.ToLower(r)
		}
		if cmp == r || strings.HasPrefix(cmp, r+string(filepath.Separator)) || strings.HasPrefix(cmp, r+"/") {
			return fmt.Errorf("path resolves into a protected system directory")
		}
	}
	return nil
}
