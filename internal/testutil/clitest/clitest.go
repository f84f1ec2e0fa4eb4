// Package clitest builds the splunkutils binary and runs it as a child process
// in integration tests.
package clitest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// HECConfig is the destination written to the generated configuration file.
type HECConfig struct {
	Server     string
	Port       string
	Token      string
	SourceType string
	UseGzip    bool
}

// Instance is one configured invocation of the binary.
type Instance struct {
	HECConfig      *HECConfig
	BlockSize      int
	SplitOversized bool
	JournalDir     string

	configFile string
	t          *testing.T
}

// Result is the outcome of one run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Option is a functional option for configuring Instance.
type Option func(*Instance)

// WithHEC points the instance at a HEC server.
func WithHEC(server, port, token, sourceType string, useGzip bool) Option {
	return func(i *Instance) {
		i.HECConfig = &HECConfig{
			Server:     server,
			Port:       port,
			Token:      token,
			SourceType: sourceType,
			UseGzip:    useGzip,
		}
	}
}

// WithBlockSize sets the upload block size.
func WithBlockSize(n int) Option {
	return func(i *Instance) {
		i.BlockSize = n
	}
}

// WithSplitOversized allows records longer than the block size.
func WithSplitOversized() Option {
	return func(i *Instance) {
		i.SplitOversized = true
	}
}

// WithJournal enables the transfer journal in a temporary directory.
func WithJournal() Option {
	return func(i *Instance) {
		i.JournalDir = i.t.TempDir()
	}
}

// New creates an instance and writes its configuration file.
func New(t *testing.T, opts ...Option) *Instance {
	t.Helper()

	i := &Instance{t: t}
	for _, opt := range opts {
		opt(i)
	}

	configFile, err := i.generateConfigFile()
	if err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}
	i.configFile = configFile
	return i
}

// Run executes the binary with the generated configuration and args.
func (i *Instance) Run(args ...string) Result {
	i.t.Helper()

	binary := Binary(i.t)
	full := append([]string{args[0], "--config", i.configFile}, args[1:]...)

	// #nosec G204 -- test binary built by this package.
	cmd := exec.Command(binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = i.t.TempDir()

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		i.t.Fatalf("Failed to start %s: %v", binary, err)
	}
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case err = <-done:
	case <-time.After(60 * time.Second):
		_ = cmd.Process.Kill()
		i.t.Fatalf("Timeout waiting for %v: stdout=%s stderr=%s", full, stdout.String(), stderr.String())
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		i.t.Fatalf("Failed to run %s: %v", binary, err)
	}
	return res
}

// JournalFiles returns the journal files written so far.
func (i *Instance) JournalFiles() []string {
	i.t.Helper()
	if i.JournalDir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(i.JournalDir, "journal-*.ndjson"))
	if err != nil {
		i.t.Fatalf("Failed to list journal: %v", err)
	}
	return matches
}

// generateConfigFile generates a temporary YAML config file for the instance.
func (i *Instance) generateConfigFile() (string, error) {
	hec := map[string]interface{}{}
	upload := map[string]interface{}{}

	if i.HECConfig != nil {
		hec["server"] = i.HECConfig.Server
		hec["port"] = i.HECConfig.Port
		hec["token"] = i.HECConfig.Token
		hec["gzip"] = i.HECConfig.UseGzip
		if i.HECConfig.SourceType != "" {
			hec["sourcetype"] = i.HECConfig.SourceType
		}
	}
	if i.BlockSize > 0 {
		upload["block_size"] = i.BlockSize
	}
	if i.SplitOversized {
		upload["split_oversized"] = true
	}
	if i.JournalDir != "" {
		upload["journal_dir"] = i.JournalDir
	}

	yamlBytes, err := yaml.Marshal(map[string]interface{}{"hec": hec, "upload": upload})
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	configFile := filepath.Join(i.t.TempDir(), "splunkutils.yml")
	if err := os.WriteFile(configFile, yamlBytes, 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configFile, nil
}

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

// Binary builds the command once per test process and returns its path.
func Binary(t *testing.T) string {
	t.Helper()

	buildOnce.Do(func() {
		root, err := findProjectRoot()
		if err != nil {
			buildErr = err
			return
		}
		dir, err := os.MkdirTemp("", "splunkutils-bin-")
		if err != nil {
			buildErr = err
			return
		}
		binPath = filepath.Join(dir, "splunkutils")

		cmd := exec.Command("go", "build", "-o", binPath, "./cmd/splunkutils")
		cmd.Dir = root
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("go build failed: %w\nOutput: %s", err, output)
		}
	})

	if buildErr != nil {
		t.Fatalf("Failed to build binary: %v", buildErr)
	}
	return binPath
}

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}
