package preflight

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

// fakeWorkerBinary writes an executable that answers --version.
func fakeWorkerBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moshi-server")
	script := "#!/bin/bash\necho \"moshi-server 0.6.3\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestCheckWorkerBinary(t *testing.T) {
	c := checkWorkerBinary(fakeWorkerBinary(t))
	if !c.Passed {
		t.Fatalf("check failed: %s", c.Message)
	}
	if !strings.Contains(c.Message, "0.6.3") {
		t.Errorf("message should carry the version: %s", c.Message)
	}
}

func TestCheckWorkerBinary_Missing(t *testing.T) {
	c := checkWorkerBinary("/nonexistent/no-such-binary-xyz")
	if c.Passed {
		t.Error("missing binary should fail")
	}
	if !strings.Contains(c.Message, "not found") {
		t.Errorf("message = %s", c.Message)
	}
}

func TestCheckPortFree(t *testing.T) {
	c := checkPortFree("127.0.0.1", 34571)
	if !c.Passed {
		t.Errorf("unused port should pass: %s", c.Message)
	}
}

func TestCheckPortFree_Occupied(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	c := checkPortFree("127.0.0.1", port)
	if c.Passed {
		t.Error("occupied port should fail")
	}
}

func TestCheckDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "models")
	c := checkDirWritable("models_dir", dir)
	if !c.Passed {
		t.Errorf("temp dir should be writable: %s", c.Message)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("check should create the directory")
	}
	if _, err := os.Stat(filepath.Join(dir, ".preflight")); !os.IsNotExist(err) {
		t.Error("probe file should be removed")
	}
}

func TestCheckDirWritable_Empty(t *testing.T) {
	if c := checkDirWritable("work_dir", ""); c.Passed {
		t.Error("empty path should fail")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	c := checkDiskSpace(t.TempDir())
	// Never fatal, only possibly a warning
	if !c.Passed {
		t.Errorf("disk space check should not fail: %s", c.Message)
	}
	if !strings.Contains(c.Message, "GiB") {
		t.Errorf("message = %s", c.Message)
	}
}

func TestCheckFileDescriptors(t *testing.T) {
	c := checkFileDescriptors()
	if c.Actual <= 0 {
		t.Errorf("Actual = %d, should report the rlimit", c.Actual)
	}
}

func TestRunAll(t *testing.T) {
	base := t.TempDir()
	result := RunAll(Params{
		BinaryPath: fakeWorkerBinary(t),
		Addr:       "127.0.0.1",
		Port:       34572,
		ModelsDir:  filepath.Join(base, "models"),
		WorkDir:    filepath.Join(base, "run"),
	})

	if len(result.Checks) != 6 {
		t.Errorf("got %d checks, want 6", len(result.Checks))
	}
	if !result.Passed {
		for _, c := range result.Checks {
			if !c.Passed {
				t.Errorf("unexpected failure: %s", c.String())
			}
		}
	}
}

func TestRunAll_MissingBinaryFailsOverall(t *testing.T) {
	base := t.TempDir()
	result := RunAll(Params{
		BinaryPath: "/nonexistent/no-such-binary-xyz",
		Addr:       "127.0.0.1",
		Port:       34573,
		ModelsDir:  base,
		WorkDir:    base,
	})
	if result.Passed {
		t.Error("missing binary should fail the run")
	}
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{"worker_binary", "port_free", "models_dir", "file_descriptors", "unknown"} {
		if suggestFix(name) == "" {
			t.Errorf("no suggestion for %s", name)
		}
	}
}
