package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBooks executes the root command against dbPath and returns what it printed.
func runBooks(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(args, "--db", dbPath, "--log-level", "error"))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// newTestDB isolates HOME and returns a database path inside a temp directory.
func newTestDB(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, "books.db")
}

func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	tests := []struct {
		name        string
		subcommands []string
	}{
		{name: "migrate"},
		{name: "import"},
		{name: "categories", subcommands: []string{"list", "add", "sub"}},
		{name: "rules", subcommands: []string{"list", "create", "deactivate", "metrics"}},
		{name: "categorize", subcommands: []string{"show", "run"}},
		{name: "feedback", subcommands: []string{"submit", "import"}},
		{name: "clients", subcommands: []string{"add", "list", "pattern", "summary"}},
		{name: "match", subcommands: []string{"suggest", "auto", "link", "unlink", "unlinked"}},
		{name: "checkpoint", subcommands: []string{"create", "list", "restore", "delete"}},
		{name: "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := findSubcommand(root, tt.name)
			require.NotNil(t, cmd, "%s command should exist", tt.name)
			for _, sub := range tt.subcommands {
				assert.NotNil(t, findSubcommand(cmd, sub), "%s %s should exist", tt.name, sub)
			}
		})
	}
}

func TestClientsPatternSubcommands(t *testing.T) {
	clients := findSubcommand(newRootCmd(), "clients")
	require.NotNil(t, clients)
	patterns := findSubcommand(clients, "pattern")
	require.NotNil(t, patterns)

	for _, name := range []string{"add", "list", "update", "deactivate"} {
		assert.NotNil(t, findSubcommand(patterns, name), "clients pattern %s should exist", name)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"config", "log-level", "log-format", "db"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "--%s should exist", name)
	}
	assert.Equal(t, "info", root.PersistentFlags().Lookup("log-level").DefValue)
}

func TestVersionCmd(t *testing.T) {
	out, err := runBooks(t, newTestDB(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "books dev")
}

func TestInvalidLogLevel(t *testing.T) {
	var out bytes.Buffer
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"version", "--log-level", "loud"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestMigrateCmd(t *testing.T) {
	db := newTestDB(t)

	out, err := runBooks(t, db, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")

	out, err = runBooks(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated database from version 0")

	out, err = runBooks(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database already at version")
}

func TestCreateRuleCmd_Flags(t *testing.T) {
	cmd := createRuleCmd()

	for _, name := range []string{"name", "category", "keyword", "merchant", "min", "max", "exact", "confidence"} {
		assert.NotNil(t, cmd.Flag(name), "--%s should exist", name)
	}
	assert.Equal(t, "0.8", cmd.Flag("confidence").DefValue)
}

func TestAmountPatternsFromFlags(t *testing.T) {
	tests := []struct {
		name      string
		min       string
		max       string
		exact     []string
		wantNil   bool
		wantErr   bool
		wantExact int
	}{
		{name: "no amounts", wantNil: true},
		{name: "range", min: "10", max: "20"},
		{name: "exact amounts", exact: []string{"-2400.00", "15"}, wantExact: 2},
		{name: "bad min", min: "ten", wantErr: true},
		{name: "bad exact", exact: []string{"1,5"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := amountPatternsFromFlags(tt.min, tt.max, tt.exact)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Len(t, got.ExactAmounts, tt.wantExact)
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}

func TestReportError(t *testing.T) {
	tests := []struct {
		err     error
		name    string
		want    string
		notWant string
	}{
		{
			name: "plain error",
			err:  errors.New("failed to open database"),
			want: "failed to open database",
		},
		{
			name:    "user error hides the cause",
			err:     common.NewUserError("feedback file must be a JSON array", errors.New("unexpected token")),
			want:    "feedback file must be a JSON array",
			notWant: "unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			reportError(&out, tt.err)
			assert.Contains(t, out.String(), tt.want)
			assert.Contains(t, out.String(), "✗")
			if tt.notWant != "" {
				assert.NotContains(t, out.String(), tt.notWant)
			}
		})
	}
}
