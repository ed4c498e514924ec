package attrib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/epigenlab/trackstore/internal/procgroup"
)

// Handle is an opened attribute source. Parsers read the local file it
// points at, once per chromosome.
type Handle interface {
	Path() string
	Close() error
}

// fileHandle wraps a source the parsers can read directly.
type fileHandle struct {
	path string
}

func (h *fileHandle) Path() string { return h.path }
func (h *fileHandle) Close() error { return nil }

// convertedHandle wraps the output of an external converter run. Close
// removes the converted copy.
type convertedHandle struct {
	path    string
	workDir string
}

func (h *convertedHandle) Path() string { return h.path }

func (h *convertedHandle) Close() error {
	return os.RemoveAll(h.workDir)
}

func needsConversion(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bw", ".bigwig":
		return true
	}
	return false
}

// openConverted runs "<converter...> <src> <dst>" as a child process in its
// own session, registered with the process group for the duration of the
// run so cascade cancellation can terminate it.
func openConverted(ctx context.Context, converter []string, src string, procs *procgroup.Group) (Handle, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("attrib: open %s: %w", src, err)
	}

	workDir, err := os.MkdirTemp("", "trackstore-convert-*")
	if err != nil {
		return nil, fmt.Errorf("attrib: temp dir: %w", err)
	}
	dst := filepath.Join(workDir, filepath.Base(src)+".bedGraph")

	args := append(append([]string{}, converter[1:]...), src, dst)
	cmd := procs.Command(converter[0], args...)
	if err := procs.Start(cmd); err != nil {
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("attrib: start %s: %w", converter[0], err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		procs.Release(cmd.Process.Pid)
		if err != nil {
			os.RemoveAll(workDir)
			return nil, fmt.Errorf("attrib: convert %s: %w", src, err)
		}
	case <-ctx.Done():
		// The converter stays registered; cascade cancellation or the
		// deferred TerminateAll reaps it.
		os.RemoveAll(workDir)
		return nil, ctx.Err()
	}

	return &convertedHandle{path: dst, workDir: workDir}, nil
}
