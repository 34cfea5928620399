package thumbnail

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKindFor(t *testing.T) {
	cases := []struct {
		path    string
		want    artifactKind
		wantOk  bool
	}{
		{"album/photo.jpg", kindImage, true},
		{"album/photo.PNG", kindImage, true},
		{"album/clip.mp4", kindVideo, true},
		{"album/notes.txt", "", false},
		{"album/no-extension", "", false},
	}
	for _, c := range cases {
		kind, ok := kindFor(c.path)
		if ok != c.wantOk || (ok && kind != c.want) {
			t.Errorf("kindFor(%q) = (%q, %v), want (%q, %v)", c.path, kind, ok, c.want, c.wantOk)
		}
	}
}

func TestDerivedBasePathStripsExtension(t *testing.T) {
	e := &Engine{thumbsDir: "/data/thumbs"}
	got := e.derivedBasePath("album/sub/photo.jpg", kindImage)
	want := filepath.Join("/data/thumbs", "album/sub/photo")
	if got != want {
		t.Errorf("derivedBasePath = %q, want %q", got, want)
	}
}

func TestExistingArtifactPrefersWebp(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{thumbsDir: dir}

	relPath := "album/photo.jpg"
	base := e.derivedBasePath(relPath, kindImage)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+".jpg", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+".webp", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := e.existingArtifact(relPath, kindImage)
	if !ok {
		t.Fatal("expected an existing artifact")
	}
	if got != base+".webp" {
		t.Errorf("existingArtifact = %q, want webp path %q", got, base+".webp")
	}
}

func TestExistingArtifactFallsBackToJpg(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{thumbsDir: dir}

	relPath := "album/photo.jpg"
	base := e.derivedBasePath(relPath, kindImage)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+".jpg", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := e.existingArtifact(relPath, kindImage)
	if !ok {
		t.Fatal("expected an existing artifact")
	}
	if got != base+".jpg" {
		t.Errorf("existingArtifact = %q, want jpg path %q", got, base+".jpg")
	}
}

func TestExistingArtifactMissing(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{thumbsDir: dir}
	if _, ok := e.existingArtifact("album/photo.jpg", kindImage); ok {
		t.Error("expected no existing artifact in empty dir")
	}
}

func TestWriteAtomicCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "thumb.webp")
	if err := writeAtomic(target, []byte("payload")); err != nil {
		t.Fatalf("writeAtomic: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q, want %q", data, "payload")
	}
	if _, err := os.Stat(target + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected .tmp file to be renamed away")
	}
}
