package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireLock_WritesPID(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("Lock file content mismatch. Expected: %q, Got: %q", want, string(content))
	}
}

func TestAcquireLock_Conflict(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("Expected second acquisition to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected *LockError, got %T", err)
	}
	if !strings.Contains(lockErr.Error(), "another avellano-bot instance") {
		t.Errorf("Unexpected error message: %s", lockErr.Error())
	}
	if !strings.Contains(lockErr.Holder, "running") {
		t.Errorf("Expected holder to describe running pid, got %q", lockErr.Holder)
	}

	// The failed attempt must not clobber the holder's pid.
	content, _ := os.ReadFile(filepath.Join(dir, LockFileName))
	if !strings.Contains(string(content), fmt.Sprintf("pid=%d", os.Getpid())) {
		t.Errorf("Holder pid was overwritten: %q", content)
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Second release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Reacquire failed: %v", err)
	}
	again.Release()
}

func TestPidFromContent(t *testing.T) {
	cases := map[string]int{
		"pid=1234\n": 1234,
		"garbage":    0,
		"pid=":       0,
		"x pid=77 y": 77,
	}
	for in, want := range cases {
		if got := pidFromContent(in); got != want {
			t.Errorf("pidFromContent(%q) = %d, want %d", in, got, want)
		}
	}
}
