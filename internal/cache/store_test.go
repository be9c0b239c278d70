package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vscan/vscan/internal/model"
)

func testVerdict(id, version string) model.ExtensionVerdict {
	score := 87
	return model.ExtensionVerdict{
		ExtensionID:   id,
		Version:       version,
		AnalysisID:    "analysis-1",
		SecurityScore: &score,
		RiskLevel:     model.RiskLow,
		VulnCounts:    model.VulnCounts{Total: 0},
		SourceStatus:  model.SourceSuccess,
		UpdatedAt:     time.Now().UTC().Truncate(time.Second),
		AnalyzedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestStoreLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	v := testVerdict("pub.ext", "1.0.0")
	if err := s.Store(v, now); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := s.Lookup("pub.ext", "1.0.0", now, 7*24*time.Hour)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.ExtensionID != v.ExtensionID || got.Version != v.Version || got.RiskLevel != v.RiskLevel {
		t.Errorf("round-tripped verdict mismatch: %+v", got)
	}
}

func TestLookupMissOnTamperedPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	v := testVerdict("pub.ext", "1.0.0")
	if err := s.Store(v, now); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, err := s.db.Exec(`UPDATE entries SET payload = payload || 'x' WHERE extension_id = ?`, "pub.ext"); err != nil {
		t.Fatalf("tampering payload: %v", err)
	}

	if _, ok := s.Lookup("pub.ext", "1.0.0", now, 7*24*time.Hour); ok {
		t.Error("expected miss after tampering with payload")
	}
}

func TestLookupMissOnTamperedTag(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	v := testVerdict("pub.ext", "1.0.0")
	if err := s.Store(v, now); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, err := s.db.Exec(`UPDATE entries SET hmac_tag = hmac_tag || 'x' WHERE extension_id = ?`, "pub.ext"); err != nil {
		t.Fatalf("tampering tag: %v", err)
	}

	if _, ok := s.Lookup("pub.ext", "1.0.0", now, 7*24*time.Hour); ok {
		t.Error("expected miss after tampering with hmac_tag")
	}
}

func TestLookupMissWhenAged(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	v := testVerdict("pub.ext", "1.0.0")
	if err := s.Store(v, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, ok := s.Lookup("pub.ext", "1.0.0", now, 24*time.Hour); ok {
		t.Error("expected miss for aged-out entry")
	}
}

func TestClearRemovesAllEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	if err := s.Store(testVerdict("a.b", "1.0.0"), now); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(testVerdict("c.d", "2.0.0"), now); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, ok := s.Lookup("a.b", "1.0.0", now, 24*time.Hour); ok {
		t.Error("expected miss after Clear")
	}
	if _, ok := s.Lookup("c.d", "2.0.0", now, 24*time.Hour); ok {
		t.Error("expected miss after Clear")
	}
}

func TestKeyFilePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC()
	if err := s1.Store(testVerdict("a.b", "1.0.0"), now); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if s2.RegeneratedKey() {
		t.Error("key should have been reused across reopen, not regenerated")
	}

	if _, ok := s2.Lookup("a.b", "1.0.0", now, 24*time.Hour); !ok {
		t.Error("expected hit using the persisted key across reopen")
	}
}

func TestMissingKeyFileInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC()
	if err := s1.Store(testVerdict("a.b", "1.0.0"), now); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(dir, keyFileName)); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if !s2.RegeneratedKey() {
		t.Error("expected key regeneration after key file removal")
	}
	if _, ok := s2.Lookup("a.b", "1.0.0", now, 24*time.Hour); ok {
		t.Error("expected cache invalidated after key regeneration")
	}
}

func TestStatsReportsEntriesAndStale(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC()
	if err := s.Store(testVerdict("fresh.ext", "1.0.0"), now); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(testVerdict("stale.ext", "1.0.0"), now.Add(-10*24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(now, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries != 2 {
		t.Errorf("got entries=%d, want 2", st.Entries)
	}
	if st.StaleCount != 1 {
		t.Errorf("got stale=%d, want 1", st.StaleCount)
	}
}
