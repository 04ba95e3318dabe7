package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cliSeed = `
[[classification]]
name = "Sciences"

[[faculty]]
name = "Science"
classification = "Sciences"

[[department]]
code = "CSC"
name = "Computer Science"
faculty = "Science"

[[programme]]
name = "B.Sc Computer Science"
department = "CSC"

[[level]]
code = "100"

[[session]]
code = "2019/2020"

[[semester]]
code = "1st"
sequence = 1

[[payment_type]]
name = "School Fees"

[[fee]]
type = "School Fees"
amount = "10000"
level = "100"
classification = "Sciences"
`

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "config.toml"), "--data-dir", dir}, args...))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("quickledger %s error: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestVersion(t *testing.T) {
	out := run(t, t.TempDir(), "version")
	if !strings.Contains(out, Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestEnrolRegisterAndPay(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "catalog.toml")
	if err := os.WriteFile(seed, []byte(cliSeed), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	out := run(t, dir, "catalog", "apply", seed)
	if !strings.Contains(out, "programme") {
		t.Errorf("catalog apply output = %q", out)
	}
	run(t, dir, "student", "add", "CSC/19/001", "--name", "Ada Obi", "--programme", "1", "--level", "100")
	out = run(t, dir, "register", "CSC/19/001", "2019/2020")
	if !strings.Contains(out, "10000.00") {
		t.Errorf("register output = %q, want the school fees charge", out)
	}
	out = run(t, dir, "pay", "CSC/19/001", "2500", "--session", "2019/2020")
	if !strings.Contains(out, "balance now 7500.00") {
		t.Errorf("pay output = %q", out)
	}
	out = run(t, dir, "student", "show", "CSC/19/001")
	if !strings.Contains(out, "Ada Obi") || !strings.Contains(out, "7500.00") {
		t.Errorf("student show output = %q", out)
	}
}
