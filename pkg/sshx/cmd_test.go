package sshx

import (
	"slices"
	"testing"

	"github.com/nicklasfrahm/rcmd/pkg/shell"
)

func TestCmdString(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Cmd
		expected string
	}{
		{
			name:     "plain",
			cmd:      Cmd{Cmd: shell.Args("cat", "/etc/hostname")},
			expected: "cat /etc/hostname",
		},
		{
			name:     "argument with spaces",
			cmd:      Cmd{Cmd: shell.Args("ls", "/tmp/my dir")},
			expected: "ls '/tmp/my dir'",
		},
		{
			name:     "shell",
			cmd:      Cmd{Cmd: shell.Args("uninstall.sh"), Shell: true},
			expected: "sh -c uninstall.sh",
		},
		{
			name:     "shell with quoting",
			cmd:      Cmd{Cmd: shell.Args("echo", "it's"), Shell: true},
			expected: `sh -c 'echo '"'"'it'"'"'"'"'"'"'"'"'s'"'"''`,
		},
		{
			name: "env sorted",
			cmd: Cmd{
				Cmd: shell.Args("/tmp/install.sh"),
				Env: map[string]string{"B": "two words", "A": "1"},
			},
			expected: "env A=1 'B=two words' /tmp/install.sh",
		},
		{
			name:     "sudo",
			cmd:      Cmd{Cmd: shell.Args("ss", "-ax"), Sudo: true},
			expected: "sudo ss -ax",
		},
		{
			name: "everything",
			cmd: Cmd{
				Cmd:   shell.Args("echo", "$HOME"),
				Env:   map[string]string{"LANG": "C"},
				Shell: true,
				Sudo:  true,
			},
			expected: `sudo env LANG=C sh -c 'echo '"'"'$HOME'"'"''`,
		},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.expected {
			t.Errorf("%s: String() = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestCmdStringReparses(t *testing.T) {
	cmd := Cmd{
		Cmd:   shell.Args("printf", "%s\n", "it's", "a b"),
		Env:   map[string]string{"X": "y z"},
		Shell: true,
	}

	outer, err := shell.Split(cmd.String())
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	want := []string{"env", "X=y z", "sh", "-c", cmd.Cmd.String()}
	if got := outer.Args(); !slices.Equal(got, want) {
		t.Fatalf("outer arguments = %q, want %q", got, want)
	}

	inner, err := shell.Split(outer.Args()[4])
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if !inner.Equal(cmd.Cmd) {
		t.Errorf("inner arguments = %q, want %q", inner.Args(), cmd.Cmd.Args())
	}
}
