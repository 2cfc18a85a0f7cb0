package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckTargetAccessible(t *testing.T) {
	t.Run("Happy Path - Target Exists", func(t *testing.T) {
		targetDir := t.TempDir()
		if err := CheckTargetAccessible(targetDir); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Happy Path - Target Does Not Exist, Ancestor Exists", func(t *testing.T) {
		targetDir := filepath.Join(t.TempDir(), "new_dir", "deeper")
		if err := CheckTargetAccessible(targetDir); err != nil {
			t.Errorf("expected no error when an ancestor exists, but got: %v", err)
		}
	})

	t.Run("Error - Target Is a File", func(t *testing.T) {
		targetFile := filepath.Join(t.TempDir(), "target.txt")
		if err := os.WriteFile(targetFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		err := CheckTargetAccessible(targetFile)
		if err == nil {
			t.Fatal("expected an error when target is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error to be about 'not a directory', but got: %v", err)
		}
	})

	t.Run("Error - Current Directory", func(t *testing.T) {
		if err := CheckTargetAccessible("."); err == nil {
			t.Error("expected an error for '.', but got nil")
		}
	})
}

func TestCheckSourceAccessible(t *testing.T) {
	t.Run("Happy Path - Source is a directory", func(t *testing.T) {
		if err := CheckSourceAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Error - Source does not exist", func(t *testing.T) {
		err := CheckSourceAccessible(filepath.Join(t.TempDir(), "nonexistent"))
		if err == nil {
			t.Fatal("expected an error for non-existent source, but got nil")
		}
		if !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected error about non-existent source, but got: %v", err)
		}
	})

	t.Run("Error - Source is a file", func(t *testing.T) {
		srcFile := filepath.Join(t.TempDir(), "source.txt")
		if err := os.WriteFile(srcFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckSourceAccessible(srcFile)
		if err == nil {
			t.Fatal("expected an error when source is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error about source not being a directory, but got: %v", err)
		}
	})
}

func TestCheckTargetWritable(t *testing.T) {
	t.Run("Happy Path - Directory is writable", func(t *testing.T) {
		targetDir := t.TempDir()
		if err := CheckTargetWritable(targetDir); err != nil {
			t.Errorf("expected no error, but got: %v", err)
		}
		entries, _ := os.ReadDir(targetDir)
		if len(entries) != 0 {
			t.Errorf("expected write test file to be removed, found %d entries", len(entries))
		}
	})

	t.Run("Happy Path - Missing directory is created", func(t *testing.T) {
		targetDir := filepath.Join(t.TempDir(), "a", "b")
		if err := CheckTargetWritable(targetDir); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if info, err := os.Stat(targetDir); err != nil || !info.IsDir() {
			t.Errorf("expected target directory to be created, stat err: %v", err)
		}
	})

	t.Run("Error - Target is a file", func(t *testing.T) {
		targetFile := filepath.Join(t.TempDir(), "target.txt")
		if err := os.WriteFile(targetFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckTargetWritable(targetFile)
		if err == nil || !strings.Contains(err.Error(), "failed to create target directory") {
			t.Errorf("expected error about target being a file, but got: %v", err)
		}
	})
}
