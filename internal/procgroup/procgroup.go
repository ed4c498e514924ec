// Package procgroup tracks child OS processes spawned during a pipeline run
// and tears the whole process tree down on cascade cancellation.
//
// Children are registered when started, so teardown works from explicit
// handles instead of re-deriving the tree each time; a recursive descendant
// enumeration of the current process backstops grandchildren the handles
// cannot see. Termination is idempotent: descendants already gone are
// simply skipped.
package procgroup

import (
	"os"
	"os/exec"
	"sync"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/epigenlab/trackstore/internal/logging"
	"github.com/epigenlab/trackstore/internal/metrics"
)

// Group tracks spawned child processes for one pipeline run.
type Group struct {
	mu       sync.Mutex
	children map[int]*exec.Cmd
}

// New creates an empty process group.
func New() *Group {
	return &Group{children: make(map[int]*exec.Cmd)}
}

// Command builds an exec.Cmd configured to run in its own session, so a
// terminal interrupt aimed at the orchestrating process never reaches the
// child directly. Only the group's explicit termination signal does.
func (g *Group) Command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = sessionAttr()
	return cmd
}

// Start launches the command and registers it with the group.
func (g *Group) Start(cmd *exec.Cmd) error {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = sessionAttr()
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	g.mu.Lock()
	g.children[cmd.Process.Pid] = cmd
	g.mu.Unlock()
	return nil
}

// Release drops a finished child from the group. Call after Wait.
func (g *Group) Release(pid int) {
	g.mu.Lock()
	delete(g.children, pid)
	g.mu.Unlock()
}

// Len returns the number of tracked children.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.children)
}

// TerminateAll sends the termination signal to every tracked child and every
// recursively-enumerated descendant of the current process. Safe to call
// from any nesting level, any number of times.
func (g *Group) TerminateAll() {
	log := logging.Component("procgroup")

	g.mu.Lock()
	pids := make([]int32, 0, len(g.children))
	for pid := range g.children {
		pids = append(pids, int32(pid))
	}
	g.mu.Unlock()

	seen := make(map[int32]bool)
	terminated := 0
	for _, pid := range pids {
		terminated += terminateTree(pid, seen)
	}

	// Backstop: descendants spawned below tracked children, or by code that
	// never registered its handle.
	if self, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if kids, err := self.Children(); err == nil {
			for _, k := range kids {
				terminated += terminateTree(k.Pid, seen)
			}
		}
	}

	if terminated > 0 {
		log.Warn("terminated descendant processes", "count", terminated)
	}
	if m := metrics.Get(); m != nil {
		m.ProcessesTerminated.Add(float64(terminated))
	}
}

// terminateTree signals pid and its descendants, deepest first, skipping
// anything already visited or already dead.
func terminateTree(pid int32, seen map[int32]bool) int {
	if seen[pid] {
		return 0
	}
	seen[pid] = true

	p, err := process.NewProcess(pid)
	if err != nil {
		// Already gone; an ancestor's cascade may have beaten us to it.
		return 0
	}

	terminated := 0
	if kids, err := p.Children(); err == nil {
		for _, k := range kids {
			terminated += terminateTree(k.Pid, seen)
		}
	}

	if err := p.Terminate(); err == nil {
		terminated++
	}
	return terminated
}
