package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args against the given config file
// and returns captured stdout.
func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func writeCLIConfig(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	configPath := filepath.Join(root, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`upload_dir = "` + filepath.Join(root, "uploads") + `"`,
		`work_dir = "` + filepath.Join(root, "work") + `"`,
		`log_dir = "` + filepath.Join(root, "logs") + `"`,
		"",
		"[store]",
		`path = "` + filepath.Join(root, "jobs.db") + `"`,
		"",
		"[notify]",
		`base_url = ""`,
	}, "\n") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsSecretKey(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`upload_dir = "` + filepath.Join(root, "uploads") + `"`,
		`work_dir = "` + filepath.Join(root, "work") + `"`,
		`log_dir = "` + filepath.Join(root, "logs") + `"`,
		"",
		"[storage]",
		`secret_key = "super-secret"`,
	}, "\n") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, []string{"config", "show"}, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "super-secret") {
		t.Fatalf("secret key leaked into output:\n%s", out)
	}
}

func TestJobsListEmpty(t *testing.T) {
	configPath := writeCLIConfig(t)

	out, err := runCLI(t, []string{"jobs", "list"}, configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs found")
}

func TestJobsShowUnknownJob(t *testing.T) {
	configPath := writeCLIConfig(t)

	if _, err := runCLI(t, []string{"jobs", "show", "nope"}, configPath); err == nil {
		t.Fatal("expected unknown job to error")
	}
}

func TestParseMetadata(t *testing.T) {
	metadata, err := parseMetadata([]string{"dbId=job-7", "source=camera"})
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if metadata["dbId"] != "job-7" || metadata["source"] != "camera" {
		t.Fatalf("unexpected metadata: %#v", metadata)
	}

	if _, err := parseMetadata([]string{"missing-separator"}); err == nil {
		t.Fatal("expected malformed entry to error")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, []string{"version"}, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "slipstream")
}
