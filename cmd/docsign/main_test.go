package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsign/internal/fakeservice"
)

type cliEnv struct {
	t      *testing.T
	fake   *fakeservice.Service
	config string
	dir    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	fake := fakeservice.New(fakeservice.WithFrontendURL("https://app.example.com"))
	srv := httptest.NewServer(fake.Router())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := strings.Join([]string{
		"apiBaseURL: " + srv.URL,
		"logLevel: error",
		"sessionBackend: file",
		"sessionFile: " + filepath.Join(dir, "session.json"),
		"trackerBackend: memory",
		"artifactBackend: local",
		"artifactDir: " + filepath.Join(dir, "artifacts"),
		"summaryPollInterval: 10ms",
	}, "\n")
	path := filepath.Join(dir, "docsign.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{t: t, fake: fake, config: path, dir: dir}
}

func (e *cliEnv) run(args ...string) (int, string, string) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", e.config}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	code, out, errOut := e.run(args...)
	if code != 0 {
		e.t.Fatalf("docsign %s exited %d: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

func TestCLIDocumentLifecycle(t *testing.T) {
	e := newCLIEnv(t)

	out := e.mustRun("register", "--username", "alice", "--email", "alice@example.com",
		"--first-name", "Alice", "--last-name", "Smith",
		"--password", "correct-horse", "--confirm-password", "correct-horse")
	if !strings.Contains(out, "registered alice") {
		t.Fatalf("register output: %q", out)
	}
	if out := e.mustRun("login", "--username", "alice", "--password", "correct-horse"); !strings.Contains(out, "logged in as alice (user)") {
		t.Fatalf("login output: %q", out)
	}
	if out := e.mustRun("whoami"); !strings.Contains(out, "alice@example.com") {
		t.Fatalf("whoami output: %q", out)
	}

	out = e.mustRun("create", "--name", "NDA1", "--type", "nda", "--prompt", "standard terms",
		"--signer-username", "jdoe", "--signer-email", "j@x.com",
		"--signer-first-name", "John", "--signer-last-name", "Doe",
		"--meta", "start_date=2024-01-01", "--meta", "end_date=2024-12-31",
		"--meta", "recipient_name=John Doe", "--send")
	if !strings.Contains(out, "created document 1") || !strings.Contains(out, "sent to jdoe") {
		t.Fatalf("create output: %q", out)
	}
	if out := e.mustRun("list"); !strings.Contains(out, "NDA1") || !strings.Contains(out, "jdoe") {
		t.Fatalf("list output: %q", out)
	}

	out = e.mustRun("summarize", "--id", "1", "--wait")
	if !strings.Contains(out, "Signatures required:") {
		t.Fatalf("summarize output: %q", out)
	}
	if out := e.mustRun("summary", "--id", "1"); !strings.Contains(out, "Terms:") {
		t.Fatalf("summary output: %q", out)
	}

	links := e.fake.SigningLinks(1)
	if len(links) != 1 {
		t.Fatalf("expected one signing link, got %d", len(links))
	}
	review := filepath.Join(e.dir, "review.pdf")
	out = e.mustRun("sign", "--link", links[0], "--out", review)
	if !strings.Contains(out, "document 1 signed") || !strings.Contains(out, "saved "+review) {
		t.Fatalf("sign output: %q", out)
	}
	if out := e.mustRun("sign", "--link", links[0]); !strings.Contains(out, "already signed") {
		t.Fatalf("second sign output: %q", out)
	}

	signedPath := filepath.Join(e.dir, "signed.pdf")
	e.mustRun("download", "--id", "1", "--signed", "--out", signedPath)
	data, err := os.ReadFile(signedPath)
	if err != nil {
		t.Fatalf("read signed pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("signed pdf has no header")
	}
	if out := e.mustRun("download", "--id", "1"); !strings.Contains(out, filepath.Join("documents", "1", "original.pdf")) {
		t.Fatalf("archive output: %q", out)
	}
	if out := e.mustRun("summarize", "--id", "1"); !strings.Contains(out, "summary of document 1 requested") {
		t.Fatalf("summarize after signing: %q", out)
	}
	if out := e.mustRun("status", "--id", "1"); !strings.Contains(out, "SIGNED") || !strings.Contains(out, "by jdoe") {
		t.Fatalf("status output: %q", out)
	}

	e.mustRun("logout")
	code, _, errOut := e.run("whoami")
	if code != 1 || !strings.Contains(errOut, "not logged in") {
		t.Fatalf("whoami after logout: %d %q", code, errOut)
	}
}

func TestCLICreateReportsMissingFields(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("register", "--username", "bob", "--email", "bob@example.com",
		"--first-name", "Bob", "--last-name", "B",
		"--password", "long-enough", "--confirm-password", "long-enough")
	e.mustRun("login", "--username", "bob", "--password", "long-enough")

	code, _, errOut := e.run("create", "--name", "Offer", "--type", "offer", "--prompt", "p",
		"--meta", "salary=lots")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	for _, want := range []string{"signer_username: required", "start_date: required", "salary: expected a number"} {
		if !strings.Contains(errOut, want) {
			t.Fatalf("stderr missing %q: %s", want, errOut)
		}
	}
}

func TestCLIUsageErrors(t *testing.T) {
	e := newCLIEnv(t)
	if code, _, _ := e.run("bogus"); code != 2 {
		t.Fatalf("unknown command exit = %d", code)
	}
	if code, _, _ := e.run("send"); code != 2 {
		t.Fatalf("send without --id exit = %d", code)
	}
	if code, _, errOut := e.run("create", "--meta", "novalue"); code != 2 || !strings.Contains(errOut, "key=value") {
		t.Fatalf("bad --meta: %d %q", code, errOut)
	}
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 2 {
		t.Fatalf("no args exit = %d", code)
	}
}

func TestCLITemplatesNeedsNoSession(t *testing.T) {
	e := newCLIEnv(t)
	out := e.mustRun("templates")
	for _, want := range []string{"nda (Non-Disclosure Agreement)", "--meta salary=<number>", "--meta due_date=<date>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("templates output missing %q: %s", want, out)
		}
	}
}

func TestCLIProtectedCommandRequiresLogin(t *testing.T) {
	e := newCLIEnv(t)
	code, _, errOut := e.run("list")
	if code != 1 || !strings.Contains(errOut, "not logged in") {
		t.Fatalf("list without login: %d %q", code, errOut)
	}
}

func TestCLIDownloadReusesArchivedPDF(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("register", "--username", "carol", "--email", "carol@example.com",
		"--first-name", "Carol", "--last-name", "C",
		"--password", "long-enough", "--confirm-password", "long-enough")
	e.mustRun("login", "--username", "carol", "--password", "long-enough")
	e.mustRun("whoami")
	e.mustRun("create", "--name", "NDA1", "--type", "nda", "--prompt", "standard terms",
		"--signer-username", "jdoe", "--signer-email", "j@x.com",
		"--signer-first-name", "John", "--signer-last-name", "Doe",
		"--meta", "start_date=2024-01-01", "--meta", "end_date=2024-12-31",
		"--meta", "recipient_name=John Doe")

	artifacts := filepath.Join(e.dir, "artifacts")
	if _, err := os.Stat(artifacts); !os.IsNotExist(err) {
		t.Fatalf("artifact dir created before any download: %v", err)
	}

	if out := e.mustRun("download", "--id", "1"); !strings.Contains(out, "stored original pdf of document 1") {
		t.Fatalf("first download: %q", out)
	}
	out := e.mustRun("download", "--id", "1", "--text")
	if !strings.Contains(out, "already stored") || !strings.Contains(out, "NDA1") {
		t.Fatalf("cached download: %q", out)
	}

	stored := filepath.Join(artifacts, "documents", "1", "original.pdf")
	if err := os.WriteFile(stored, []byte("not a pdf"), 0o644); err != nil {
		t.Fatalf("corrupt artifact: %v", err)
	}
	if out := e.mustRun("download", "--id", "1"); !strings.Contains(out, "stored original pdf of document 1") {
		t.Fatalf("download over corrupt artifact: %q", out)
	}
	if out := e.mustRun("download", "--id", "1", "--refresh"); !strings.Contains(out, "stored original pdf") {
		t.Fatalf("refresh download: %q", out)
	}
}
