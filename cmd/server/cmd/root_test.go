package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
		expectError    bool
	}{
		{
			name:           "help flag",
			args:           []string{"--help"},
			expectedOutput: "eventdesk server",
		},
		{
			name:           "short help flag",
			args:           []string{"-h"},
			expectedOutput: "eventdesk server",
		},
		{
			name:           "invalid flag",
			args:           []string{"--invalid-flag"},
			expectedOutput: "unknown flag: --invalid-flag",
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// fresh command per case to avoid flag state leaking
			cmd := newRootCommand()

			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			output := buf.String()

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !strings.Contains(output, tt.expectedOutput) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.expectedOutput, output)
			}
		})
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"serve", "migrate", "version", "healthcheck"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, flag := range []string{"config", "log-level", "log-format"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag %q", flag)
		}
	}
	// serve flags are accepted on the bare root invocation
	for _, flag := range []string{"host", "port", "migrate"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected root flag %q", flag)
		}
	}
}
