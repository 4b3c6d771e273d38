package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetWorkDirCreatesNestedDirs(t *testing.T) {
	t.Parallel()
	base := t.TempDir()

	dir, err := GetWorkDir(base, "data", "db")
	if err != nil {
		t.Fatalf("GetWorkDir: %v", err)
	}
	if dir != filepath.Join(base, "data", "db") {
		t.Fatalf("unexpected dir %q", dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("work dir was not created: %v", err)
	}
}
