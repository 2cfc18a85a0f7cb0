//go:build !windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckTargetAccessible_Unix(t *testing.T) {
	t.Run("Error - No Permission on Deepest Existing Ancestor", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permission checks do not apply to root")
		}
		grandparent := t.TempDir()
		unreadableAncestor := filepath.Join(grandparent, "unreadable_ancestor")
		if err := os.Mkdir(unreadableAncestor, 0000); err != nil {
			t.Fatalf("failed to create unreadable ancestor dir: %v", err)
		}
		t.Cleanup(func() { os.Chmod(unreadableAncestor, 0755) })

		targetDir := filepath.Join(unreadableAncestor, "non_existent_child", "target")

		err := CheckTargetAccessible(targetDir)
		if err == nil {
			t.Fatal("expected a permission error, but got nil")
		}
		if !strings.Contains(err.Error(), "cannot access ancestor directory") {
			t.Errorf("expected error about the ancestor, but got: %v", err)
		}
	})
}

func TestOnSystemDisk_Unix(t *testing.T) {
	t.Run("Root Itself Is Not Reported", func(t *testing.T) {
		onSys, err := OnSystemDisk("/")
		if err != nil || onSys {
			t.Errorf("expected '/' not to be reported, got %v, %v", onSys, err)
		}
	})

	t.Run("Home Directory Is Exempt", func(t *testing.T) {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			t.Skip("no home directory")
		}
		onSys, err := OnSystemDisk(filepath.Join(home, "backups", "not-there"))
		if err != nil || onSys {
			t.Errorf("expected home paths to be exempt, got %v, %v", onSys, err)
		}
	})

	t.Run("Missing Path Uses Nearest Ancestor", func(t *testing.T) {
		if _, err := OnSystemDisk(filepath.Join(t.TempDir(), "x", "y")); err != nil {
			t.Errorf("expected a missing path to resolve through its ancestor, got: %v", err)
		}
	})
}
