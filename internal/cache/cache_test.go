package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"imagecull/internal/fingerprint"
)

func fp8(v uint64) fingerprint.Fingerprint {
	return fingerprint.MustNew([]uint64{v}, 8)
}

type fakeComputer struct {
	hashes   map[string]fingerprint.Fingerprint
	failures map[string]error
	err      error
	asked    []string
}

func (f *fakeComputer) HashAll(_ context.Context, _ string, ids []string) (map[string]fingerprint.Fingerprint, map[string]error, error) {
	f.asked = append(f.asked, ids...)
	if f.err != nil {
		return nil, nil, f.err
	}
	out := make(map[string]fingerprint.Fingerprint)
	failures := make(map[string]error)
	for _, id := range ids {
		if err, ok := f.failures[id]; ok {
			failures[id] = err
			continue
		}
		if fp, ok := f.hashes[id]; ok {
			out[id] = fp
		}
	}
	return out, failures, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "hashes.csv"), nil)
}

func TestLoad_MissingFile(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %d entries", len(got))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	entries := map[string]fingerprint.Fingerprint{
		"b.jpg":          fp8(0x0F),
		"a.png":          fp8(0x00),
		"holiday, 1.jpg": fp8(0xFF),
		`say "hi".gif`:   fp8(0xAA),
	}
	big := make([]uint64, 9)
	big[3] = 0xDEADBEEF
	entries["large.tif"] = fingerprint.MustNew(big, 576)

	if err := s.Save(entries); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("loaded %d entries, want %d", len(got), len(entries))
	}
	for id, want := range entries {
		if !got[id].Equal(want) {
			t.Errorf("entry %q = %s, want %s", id, got[id], want)
		}
	}
}

func TestSave_SortedAndQuoted(t *testing.T) {
	s := newTestStore(t)
	entries := map[string]fingerprint.Fingerprint{
		"z.jpg":   fp8(0x01),
		"a,b.jpg": fp8(0x02),
		"m.jpg":   fp8(0x03),
	}
	if err := s.Save(entries); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := "\"a,b.jpg\",02\nm.jpg,03\nz.jpg,01\n"
	if string(data) != want {
		t.Errorf("file contents = %q, want %q", data, want)
	}
}

func TestSave_Overwrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(map[string]fingerprint.Fingerprint{"old.jpg": fp8(1), "keep.jpg": fp8(2)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(map[string]fingerprint.Fingerprint{"keep.jpg": fp8(3)}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got["keep.jpg"].Equal(fp8(3)) {
		t.Errorf("unexpected cache after overwrite: %v", got)
	}

	matches, _ := filepath.Glob(s.Path() + ".tmp-*")
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	content := strings.Join([]string{
		"good.jpg,ff",
		"too,many,fields",
		"justone",
		"badhex.jpg,zz",
		"other.jpg,0f",
	}, "\n") + "\n"
	if err := os.WriteFile(s.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var ids []string
	for id := range got {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"good.jpg", "other.jpg"}) {
		t.Errorf("loaded ids = %v, want [good.jpg other.jpg]", ids)
	}
}

func TestResolve_ReusesHitsAndComputesMisses(t *testing.T) {
	s := newTestStore(t)
	loaded := map[string]fingerprint.Fingerprint{"a.jpg": fp8(0x00)}
	comp := &fakeComputer{hashes: map[string]fingerprint.Fingerprint{
		"a.jpg": fp8(0xFF),
		"b.jpg": fp8(0x0F),
	}}

	got, err := s.Resolve(context.Background(), "/photos", []string{"b.jpg", "a.jpg"}, loaded, comp)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !reflect.DeepEqual(comp.asked, []string{"b.jpg"}) {
		t.Errorf("computer asked for %v, want [b.jpg]", comp.asked)
	}
	if !got["a.jpg"].Equal(fp8(0x00)) {
		t.Error("cached fingerprint should be reused verbatim")
	}
	if !got["b.jpg"].Equal(fp8(0x0F)) {
		t.Error("missing fingerprint should be computed")
	}
}

func TestResolve_DropsStaleEntries(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(map[string]fingerprint.Fingerprint{"a.jpg": fp8(1), "gone.jpg": fp8(2)}); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Resolve(context.Background(), "/photos", []string{"a.jpg"}, loaded, &fakeComputer{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := got["gone.jpg"]; ok {
		t.Error("stale entry should not be returned")
	}

	reloaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded["gone.jpg"]; ok {
		t.Error("stale entry should be dropped from the cache file")
	}
	if len(reloaded) != 1 {
		t.Errorf("cache has %d entries, want 1", len(reloaded))
	}
}

func TestResolve_ExcludesFailures(t *testing.T) {
	s := newTestStore(t)
	comp := &fakeComputer{
		hashes:   map[string]fingerprint.Fingerprint{"ok.jpg": fp8(1)},
		failures: map[string]error{"broken.jpg": errors.New("decode failed")},
	}

	got, err := s.Resolve(context.Background(), "/photos", []string{"broken.jpg", "ok.jpg"}, nil, comp)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := got["broken.jpg"]; ok {
		t.Error("failed image should be excluded")
	}
	if len(got) != 1 {
		t.Errorf("got %d fingerprints, want 1", len(got))
	}
}

func TestResolve_ComputerError(t *testing.T) {
	s := newTestStore(t)
	comp := &fakeComputer{err: context.Canceled}
	_, err := s.Resolve(context.Background(), "/photos", []string{"a.jpg"}, nil, comp)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLock_Contention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes.csv")
	first := NewStore(path, nil)
	second := NewStore(path, nil)

	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}
	if err := second.Lock(); !errors.Is(err, ErrCacheLocked) {
		t.Errorf("second Lock error = %v, want ErrCacheLocked", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Errorf("Lock after release failed: %v", err)
	}
	if err := second.Unlock(); err != nil {
		t.Errorf("Unlock failed: %v", err)
	}
}

func TestUnlock_WithoutLock(t *testing.T) {
	if err := newTestStore(t).Unlock(); err != nil {
		t.Errorf("Unlock without Lock should be a no-op, got %v", err)
	}
}

func TestLoad_OddBitLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes.csv")
	fp25 := fingerprint.MustNew([]uint64{0x1ABCDEF}, 25)
	entries := map[string]fingerprint.Fingerprint{"a.jpg": fp25, "b.jpg": fp25}

	if err := NewStore(path, nil).Save(entries); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := NewStore(path, nil, WithBits(25)).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(got))
	}
	for id, fp := range got {
		if fp.Bits() != 25 {
			t.Errorf("%s: Bits() = %d, want 25", id, fp.Bits())
		}
		if !fp.Equal(fp25) {
			t.Errorf("%s: fingerprint changed across save and load", id)
		}
	}
}

func TestLoad_OtherLengthKeepsInferredBits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes.csv")
	if err := os.WriteFile(path, []byte("a.jpg,ffffffffffffffff\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NewStore(path, nil, WithBits(25)).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got["a.jpg"].Bits() != 64 {
		t.Errorf("Bits() = %d, want 64", got["a.jpg"].Bits())
	}
}
