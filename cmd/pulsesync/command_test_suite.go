//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/srg/pulsesync/internal/buffer"
	"github.com/srg/pulsesync/internal/settings"
	"github.com/srg/pulsesync/internal/store"
	"github.com/srg/pulsesync/internal/testutils"
	"github.com/srg/pulsesync/pkg/config"
)

// CommandTestSuite extends MockSensorSuite with command testing utilities.
// All cmd/pulsesync test suites should embed this instead of MockSensorSuite.
type CommandTestSuite struct {
	testutils.MockSensorSuite
	DBPath     string
	ConfigPath string
}

func (s *CommandTestSuite) SetupTest() {
	s.MockSensorSuite.SetupTest()
	dir := s.T().TempDir()
	s.DBPath = filepath.Join(dir, "pulsesync.db")
	s.ConfigPath = filepath.Join(dir, "pulsesync.yaml")
	s.T().Setenv(config.EnvToken, "")
	s.T().Setenv(config.EnvServer, "")
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// resetCommand restores every flag of cmd and its children to its default and
// binds them to ctx. Cobra keeps parsed values and the first context on the
// package-level commands between executions.
func resetCommand(ctx context.Context, cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SetContext(ctx)
	for _, c := range cmd.Commands() {
		resetCommand(ctx, c)
	}
}

// ExecuteCommandContext runs rootCmd with args against the suite's database
// and config file. Stdout goes to out; logs are discarded.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, out *syncBuffer, args ...string) error {
	resetCommand(ctx, rootCmd)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(syncBuffer))
	rootCmd.SetArgs(append(args, "--db", s.DBPath, "--config", s.ConfigPath, "--log-level", "error"))
	return rootCmd.ExecuteContext(ctx)
}

// ExecuteCommand runs rootCmd with args and returns its stdout.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(syncBuffer)
	err := s.ExecuteCommandContext(context.Background(), out, args...)
	return out.String(), err
}

// WriteConfig replaces the suite's config file with yaml.
func (s *CommandTestSuite) WriteConfig(yaml string) {
	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(yaml), 0o600), "config MUST be written")
}

// WithStore opens the suite's database directly, for seeding and inspecting state.
func (s *CommandTestSuite) WithStore(fn func(ctx context.Context, st *settings.Settings, buf *buffer.Buffer)) {
	db, err := store.Open(s.DBPath)
	s.Require().NoError(err, "database MUST open")
	defer db.Close()
	fn(context.Background(), settings.New(db), buffer.New(db, s.Logger))
}
