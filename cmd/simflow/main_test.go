package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `
engines: [mcccs]
molecules:
  - name: methane
    forcefield_name: trappe-ua
    n_compounds: 1230
    box_length: 45
    state_points:
      - {temperature: 140, pressure: 1318}
      - {temperature: 170, pressure: 2255}
`

type cliTestEnv struct {
	baseDir    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := filepath.Join(base, "simflow.toml")
	content := "[paths]\nproject_dir = \"" + base + "\"\n\n" +
		"[engines.mcccs]\ntopmon_binary = \"true\"\n\n" +
		"[engines.lammps]\nsubmit_command = \"true\"\n\n" +
		"[logging]\nlevel = \"error\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func writeManifest(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	path := filepath.Join(env.baseDir, "grid.yaml")
	if err := os.WriteFile(path, []byte(testManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "num_prod_replicates")

	target := filepath.Join(env.baseDir, "sample", "config.toml")
	out, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected config init to refuse overwriting without --overwrite")
	}
}

func TestInitDryRunCreatesNothing(t *testing.T) {
	env := setupCLITestEnv(t)
	manifestPath := writeManifest(t, env)

	out, err := runCLI(t, env, "init", "--dry-run", manifestPath)
	if err != nil {
		t.Fatalf("init --dry-run: %v", err)
	}
	requireContains(t, out, "mcccs/methane T=140 P=1318 replica=0")
	requireContains(t, out, "2 statepoints")

	entries, err := os.ReadDir(filepath.Join(env.baseDir, "workspace"))
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read workspace: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("dry run created %d workspaces", len(entries))
	}
}

func TestInitThenStatusAndJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	manifestPath := writeManifest(t, env)

	out, err := runCLI(t, env, "init", manifestPath)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "Created 2 jobs (0 already existed)")

	out, err = runCLI(t, env, "init", manifestPath)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out, "Created 0 jobs (2 already existed)")

	out, err = runCLI(t, env, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var view reportView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if len(view.Jobs) != 2 {
		t.Fatalf("status reported %d jobs, want 2", len(view.Jobs))
	}
	for _, jr := range view.Jobs {
		if jr.Stage != "set_prod_replicates" || jr.Status != "eligible" || jr.Dispatched {
			t.Fatalf("unexpected plan entry %+v", jr)
		}
	}

	out, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Set Prod Replicates")
	requireContains(t, out, "2 jobs:")

	out, err = runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "methane")

	out, err = runCLI(t, env, "jobs", "show", view.Jobs[0].JobID[:10])
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, view.Jobs[0].JobID)
	requireContains(t, out, "(none recorded)")
}

func TestRenameMoleculeDryRun(t *testing.T) {
	env := setupCLITestEnv(t)
	manifestPath := writeManifest(t, env)
	if _, err := runCLI(t, env, "init", manifestPath); err != nil {
		t.Fatalf("init: %v", err)
	}

	out, err := runCLI(t, env, "jobs", "rename-molecule", "--from", "methane", "--to", "CH4", "--dry-run")
	if err != nil {
		t.Fatalf("rename dry run: %v", err)
	}
	requireContains(t, out, "Would rename 2 jobs")

	out, err = runCLI(t, env, "jobs", "list", "--molecule", "methane")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "methane")

	if _, err := runCLI(t, env, "jobs", "rename-molecule", "--from", "methane"); err == nil {
		t.Fatal("expected an error without --to")
	}
}

func TestRunOnEmptyProject(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "0 dispatched")

	out, err = runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No dispatches recorded")
}
