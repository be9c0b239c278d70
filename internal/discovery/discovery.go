// Package discovery enumerates installed extensions under an extensions
// root and extracts the minimal metadata Scan Engine needs.
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/vscan/vscan/internal/logging"
	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/safeio"
	"github.com/vscan/vscan/internal/vscanerr"
)

// maxManifestBytes bounds package.json / extensions.json reads.
const maxManifestBytes = 1 << 20

// packageManifest is the subset of package.json fields discovery needs.
type packageManifest struct {
	Publisher   string `json:"publisher"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	DisplayName string `json:"displayName"`
}

// installIndexEntry mirrors one element of extensions.json.
type installIndexEntry struct {
	Identifier struct {
		ID string `json:"id"`
	} `json:"identifier"`
	Version  string `json:"version"`
	Location struct {
		Path string `json:"path"`
	} `json:"location"`
}

// DefaultExtensionsDir returns the platform default extensions root
//, or an error if the user's home directory cannot be resolved.
func DefaultExtensionsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", vscanerr.New(vscanerr.DiscoveryFailure, fmt.Errorf("resolving home directory: %w", err))
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, ".vscode", "extensions"), nil
	}
	return filepath.Join(home, ".vscode", "extensions"), nil
}

// Discover enumerates extensions under root, returning an ordered,
// deduplicated-by-id list of ExtensionRef. Unreadable root is fatal
// (DiscoveryFailure); unreadable/malformed individual directories are
// skipped with a warning logged through log.
func Discover(root string, log logging.Logger) ([]model.ExtensionRef, error) {
	validated, err := safeio.ValidatePath(root, safeio.PathOptions{
		AllowAbsolute: true,
		MustExist:     true,
		Purpose:       safeio.PurposeExtensionsDir,
	})
	if err != nil {
		return nil, vscanerr.New(vscanerr.DiscoveryFailure, fmt.Errorf("validating extensions root: %w", err))
	}

	entries, err := os.ReadDir(validated.String())
	if err != nil {
		return nil, vscanerr.New(vscanerr.DiscoveryFailure, fmt.Errorf("reading extensions root: %w", err))
	}

	index, hasIndex := loadInstallIndex(validated.String(), log)

	byID := make(map[string]model.ExtensionRef)
	var order []string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirName := entry.Name()
		manifestPath := filepath.Join(validated.String(), dirName, "package.json")

		ref, ok, err := parseExtensionDir(manifestPath, validated.String(), dirName)
		if err != nil {
			log.Warnf("skipping %s: %v", safeio.Sanitize(dirName, safeio.ContextLog), err)
			continue
		}
		if !ok {
			continue
		}

		if hasIndex && !index.allows(ref.ID(), ref.Version) {
			continue
		}

		id := strings.ToLower(ref.ID())
		if existing, seen := byID[id]; seen {
			if ref.Version <= existing.Version {
				continue
			}
		} else {
			order = append(order, id)
		}
		byID[id] = ref
	}

	sort.Strings(order)

	refs := make([]model.ExtensionRef, 0, len(order))
	for _, id := range order {
		refs = append(refs, byID[id])
	}
	return refs, nil
}

// parseExtensionDir reads and validates one candidate extension's
// package.json, returning ok=false for directories that are not extensions
// (no manifest) and an error for manifests that exist but are malformed.
func parseExtensionDir(manifestPath, root, dirName string) (model.ExtensionRef, bool, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.ExtensionRef{}, false, nil
		}
		return model.ExtensionRef{}, false, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	raw, err := safeio.BoundedRead(f, maxManifestBytes)
	if err != nil {
		return model.ExtensionRef{}, false, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest packageManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return model.ExtensionRef{}, false, fmt.Errorf("parsing manifest JSON: %w", err)
	}

	if manifest.Publisher == "" || manifest.Name == "" || manifest.Version == "" {
		return model.ExtensionRef{}, false, fmt.Errorf("manifest missing required publisher/name/version")
	}

	return model.ExtensionRef{
		Publisher:   manifest.Publisher,
		Name:        manifest.Name,
		Version:     manifest.Version,
		InstallPath: filepath.Join(root, dirName),
	}, true, nil
}

// installIndex answers whether (id, version) is a currently-installed
// pair according to extensions.json.
type installIndex struct {
	installed map[string]struct{}
}

func (idx installIndex) allows(id, version string) bool {
	_, ok := idx.installed[strings.ToLower(id)+"@"+version]
	return ok
}

// loadInstallIndex reads extensions.json at root, if present. Its absence
// is not an error: discovery simply falls back to directory enumeration.
func loadInstallIndex(root string, log logging.Logger) (installIndex, bool) {
	path := filepath.Join(root, "extensions.json")
	f, err := os.Open(path)
	if err != nil {
		return installIndex{}, false
	}
	defer f.Close()

	raw, err := safeio.BoundedRead(f, maxManifestBytes)
	if err != nil {
		log.Warnf("ignoring extensions.json: %v", err)
		return installIndex{}, false
	}

	var entries []installIndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warnf("ignoring malformed extensions.json: %v", err)
		return installIndex{}, false
	}

	installed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Identifier.ID == "" || e.Version == "" {
			continue
		}
		installed[strings.ToLower(e.Identifier.ID)+"@"+e.Version] = struct{}{}
	}
	return installIndex{installed: installed}, true
}
