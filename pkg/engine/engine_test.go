package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nicklasfrahm/rcmd/pkg/imagefile"
	"github.com/nicklasfrahm/rcmd/pkg/rexec"
	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

const localFleet = `
hosts:
  - name: alpha
    groups: [web]
    local: true
  - name: beta
    groups: [web, db]
    local: true
  - name: gamma
    groups: [db]
    local: true
commands:
  greet: echo hello
  args: printf '%s|'
`

func newTestEngine(t *testing.T, options ...Option) *Engine {
	t.Helper()

	config, err := ParseConfig([]byte(localFleet))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	eng, err := New(options...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := eng.SetSpec(config); err != nil {
		t.Fatalf("SetSpec() error = %v", err)
	}

	return eng
}

func connectTestEngine(t *testing.T, options ...Option) *Engine {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	eng := newTestEngine(t, options...)
	if err := eng.Connect(context.Background(), SelectorAll); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Disconnect(); err != nil {
			t.Errorf("Disconnect() error = %v", err)
		}
	})

	return eng
}

func hostNames(hosts []*Host) string {
	names := make([]string, len(hosts))
	for i, host := range hosts {
		names[i] = host.Name
	}
	return strings.Join(names, ",")
}

func TestFilterHosts(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		selector string
		want     string
	}{
		{selector: "", want: "alpha,beta,gamma"},
		{selector: "all", want: "alpha,beta,gamma"},
		{selector: "beta", want: "beta"},
		{selector: "web", want: "alpha,beta"},
		{selector: "db", want: "beta,gamma"},
		{selector: "gamma, alpha", want: "alpha,gamma"},
		{selector: "web,db", want: "alpha,beta,gamma"},
	}

	for _, tt := range tests {
		hosts, err := eng.FilterHosts(tt.selector)
		if err != nil {
			t.Fatalf("FilterHosts(%q) error = %v", tt.selector, err)
		}
		if got := hostNames(hosts); got != tt.want {
			t.Errorf("FilterHosts(%q) = %q, want %q", tt.selector, got, tt.want)
		}
	}
}

func TestFilterHostsNoMatch(t *testing.T) {
	eng := newTestEngine(t)

	for _, selector := range []string{"delta", "web,delta", ","} {
		if _, err := eng.FilterHosts(selector); !errors.Is(err, ErrNoMatch) {
			t.Errorf("FilterHosts(%q) error = %v, want %v", selector, err, ErrNoMatch)
		}
	}
}

func TestFilterHostsReturnsConfigHosts(t *testing.T) {
	eng := newTestEngine(t)

	hosts, err := eng.FilterHosts("beta")
	if err != nil {
		t.Fatalf("FilterHosts() error = %v", err)
	}
	if hosts[0] != &eng.Spec.Hosts[1] {
		t.Error("FilterHosts() returned a copy of the host")
	}
}

func TestEngineWithoutConfig(t *testing.T) {
	eng, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := eng.FilterHosts("all"); !errors.Is(err, ErrNoSpec) {
		t.Errorf("FilterHosts() error = %v, want %v", err, ErrNoSpec)
	}
	if err := eng.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
}

func TestSetSpecInvalid(t *testing.T) {
	eng, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := eng.SetSpec(&Config{}); err == nil {
		t.Error("SetSpec() of empty config succeeded")
	}
	if eng.Spec != nil {
		t.Error("SetSpec() kept an invalid config")
	}
}

func TestCommand(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		input any
		want  []string
	}{
		{input: "ls -l", want: []string{"ls", "-l"}},
		{input: []string{"echo", "a b"}, want: []string{"echo", "a b"}},
		{input: "@greet", want: []string{"echo", "hello"}},
		{input: "@greet 'big world'", want: []string{"echo", "hello", "big world"}},
		{input: "@args", want: []string{"printf", "%s|"}},
	}

	for _, tt := range tests {
		got, err := eng.Command(tt.input)
		if err != nil {
			t.Fatalf("Command(%#v) error = %v", tt.input, err)
		}
		if !got.Equal(shell.Args(tt.want...)) {
			t.Errorf("Command(%#v) = %q, want %q", tt.input, got.Args(), tt.want)
		}
	}

	if _, err := eng.Command("@missing"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Command(@missing) error = %v, want %v", err, ErrUnknownCommand)
	}
	if _, err := eng.Command(42); !errors.Is(err, shell.ErrTypeMismatch) {
		t.Errorf("Command(42) error = %v, want %v", err, shell.ErrTypeMismatch)
	}
}

func TestRun(t *testing.T) {
	eng := connectTestEngine(t)

	results, err := eng.Run(context.Background(), "web", "@args 'a b' c")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, want := range []string{"alpha", "beta"} {
		if results[i].Host != want {
			t.Errorf("results[%d].Host = %q, want %q", i, results[i].Host, want)
		}
		if results[i].Err != nil || results[i].Result.Stdout != "a b|c|" {
			t.Errorf("results[%d] = %+v, want stdout %q", i, results[i], "a b|c|")
		}
	}
}

func TestRunStdinPerHost(t *testing.T) {
	eng := connectTestEngine(t)

	results, err := eng.Run(context.Background(), "all", shell.Args("cat"), rexec.WithStdin(strings.NewReader("shared")))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, result := range results {
		if result.Result.Stdout != "shared" {
			t.Errorf("%s: stdout = %q, want %q", result.Host, result.Result.Stdout, "shared")
		}
	}
}

func TestRunFailures(t *testing.T) {
	eng := connectTestEngine(t, WithConcurrency(1))

	results, err := eng.Run(context.Background(), "all", shell.Args("sh", "-c", "exit 4"))
	if err == nil {
		t.Fatal("Run() succeeded")
	}
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if !strings.Contains(err.Error(), name+": ") {
			t.Errorf("Run() error = %q, want it to name %s", err, name)
		}
	}

	var exitErr *rexec.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("Run() error = %v, want *rexec.ExitError", err)
	}
	for _, result := range results {
		if result.Result == nil || result.Result.ExitStatus != 4 {
			t.Errorf("%s: result = %+v, want exit status 4", result.Host, result.Result)
		}
	}

	results, err = eng.Run(context.Background(), "all", shell.Args("sh", "-c", "exit 4"), rexec.WithCheck(false))
	if err != nil {
		t.Fatalf("Run() without check error = %v", err)
	}
	if len(results) != 3 {
		t.Errorf("len(results) = %d, want 3", len(results))
	}
}

func TestRunNotConnected(t *testing.T) {
	eng := newTestEngine(t)

	results, err := eng.Run(context.Background(), "alpha", "true")
	if !errors.Is(err, rexec.ErrNotConnected) {
		t.Errorf("Run() error = %v, want %v", err, rexec.ErrNotConnected)
	}
	if len(results) != 1 || !errors.Is(results[0].Err, rexec.ErrNotConnected) {
		t.Errorf("results = %+v", results)
	}
}

func TestRunCancelled(t *testing.T) {
	eng := connectTestEngine(t, WithConcurrency(1))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelExpired()

	tests := []struct {
		name string
		ctx  context.Context
		cmd  string
		want error
	}{
		{name: "cancelled before start", ctx: cancelled, cmd: "true", want: context.Canceled},
		{name: "deadline while waiting for a slot", ctx: expired, cmd: "sleep 1", want: context.DeadlineExceeded},
	}

	hosts := []string{"alpha", "beta", "gamma"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := eng.Run(tt.ctx, "all", tt.cmd)
			if !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}

			if len(results) != len(hosts) {
				t.Fatalf("len(results) = %d, want %d", len(results), len(hosts))
			}
			for i, result := range results {
				if result.Host != hosts[i] {
					t.Errorf("results[%d].Host = %q, want %q", i, result.Host, hosts[i])
				}
				if result.Err == nil {
					t.Errorf("%s: Err = nil, want an error", hosts[i])
				}
			}
		})
	}
}

func TestHostnames(t *testing.T) {
	want, err := os.Hostname()
	if err != nil {
		t.Skipf("os.Hostname() error = %v", err)
	}
	if _, err := exec.LookPath("hostname"); err != nil {
		t.Skip("hostname not available")
	}

	eng := connectTestEngine(t)

	hostnames, err := eng.Hostnames(context.Background(), "db", false)
	if err != nil {
		t.Fatalf("Hostnames() error = %v", err)
	}
	if len(hostnames) != 2 || hostnames["beta"] != want || hostnames["gamma"] != want {
		t.Errorf("Hostnames() = %v, want %q for beta and gamma", hostnames, want)
	}
}

func TestPut(t *testing.T) {
	eng := connectTestEngine(t)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte("disk image"))
	w.Close()

	dir := t.TempDir()
	source := filepath.Join(dir, "image.raw.gz")
	if err := os.WriteFile(source, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	target := filepath.Join(dir, "out", "image.raw")
	if err := eng.Put(context.Background(), "alpha", source, target, imagefile.Auto); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "disk image" {
		t.Errorf("content = %q, want %q", got, "disk image")
	}

	if err := eng.Put(context.Background(), "alpha", filepath.Join(dir, "missing"), target, imagefile.Auto); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Put() of missing file error = %v, want %v", err, os.ErrNotExist)
	}
}

func TestDisconnect(t *testing.T) {
	eng := connectTestEngine(t)

	if err := eng.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	for _, host := range eng.Spec.Hosts {
		if host.Connected() {
			t.Errorf("%s still connected", host.Name)
		}
	}
}
