package identity

import (
	"path/filepath"
	"testing"
)

func TestHashPathStableAndDistinct(t *testing.T) {
	h1 := HashPath("/home/user/project-a")
	h2 := HashPath("/home/user/project-a")
	h3 := HashPath("/home/user/project-b")

	if h1 != h2 {
		t.Error("expected identical paths to hash identically")
	}
	if h1 == h3 {
		t.Error("expected distinct paths to hash differently")
	}
	if len(h1) != 16 {
		t.Errorf("expected 16-char hash, got %d", len(h1))
	}
}

func TestResolveProducesAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	p := Resolve(dir)
	if !filepath.IsAbs(p.Path) {
		t.Errorf("expected absolute path, got %s", p.Path)
	}
	if p.Hash != HashPath(p.Path) {
		t.Error("expected hash to match resolved path")
	}
}

func TestGitBranchOnNonRepoReturnsUnknown(t *testing.T) {
	dir := t.TempDir()
	if got := GitBranch(dir); got != "unknown" {
		t.Errorf("expected \"unknown\" branch for non-repo dir, got %q", got)
	}
}
