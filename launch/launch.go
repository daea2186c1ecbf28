// Package launch starts one process per rank on the local host and
// waits for all of them.
package launch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/env"
)

// ReservePorts finds n free loopback addresses. The ports are released
// before returning, so a child is expected to bind them soon after.
func ReservePorts(n int) ([]string, error) {
	var addrs []string
	var listeners []net.Listener
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, common.Wrap(common.ResourceError, "reserve ports", err)
		}
		listeners = append(listeners, l)
		addrs = append(addrs, l.Addr().String())
	}
	return addrs, nil
}

func ParsePeers(s string) []string {
	var peers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}

// Launcher re-executes a binary once per rank with the rank and peer
// list in its environment.
type Launcher struct {
	Path   string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

type exit struct {
	rank int
	err  error
}

// rankProcess is one started child.
type rankProcess struct {
	rank int
	cmd  *exec.Cmd
}

func (l *Launcher) start(rank int, peers []string) (*rankProcess, error) {
	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = append(append([]string(nil), l.Env...),
		fmt.Sprintf("%s=%d", env.RankVar, rank),
		fmt.Sprintf("%s=%s", env.PeersVar, strings.Join(peers, ",")),
		fmt.Sprintf("%s=grpc", env.TransportVar),
	)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start rank %d: %w", rank, err)
	}
	return &rankProcess{rank: rank, cmd: cmd}, nil
}

// Run starts n ranks and waits for them. When a rank fails the others
// are killed, and the failed rank's exit code is returned.
func (l *Launcher) Run(n int) (int, error) {
	peers, err := ReservePorts(n)
	if err != nil {
		return 0, err
	}
	var procs []*rankProcess
	killAll := func() {
		for _, p := range procs {
			p.cmd.Process.Kill()
		}
	}
	for rank := 0; rank < n; rank++ {
		p, err := l.start(rank, peers)
		if err != nil {
			killAll()
			for _, p := range procs {
				p.cmd.Wait()
			}
			return 0, common.Wrap(common.ResourceError, "launch", err)
		}
		procs = append(procs, p)
	}
	glog.V(1).Infof("launched %d ranks on %v", n, peers)

	exits := make(chan exit, n)
	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *rankProcess) {
			defer wg.Done()
			exits <- exit{p.rank, p.cmd.Wait()}
		}(p)
	}
	go func() {
		wg.Wait()
		close(exits)
	}()

	code := 0
	var first error
	for e := range exits {
		if e.err == nil || first != nil {
			continue
		}
		first = fmt.Errorf("rank %d: %w", e.rank, e.err)
		var ee *exec.ExitError
		if errors.As(e.err, &ee) && ee.Exited() {
			code = ee.ExitCode()
		} else {
			code = 1
		}
		glog.Errorf("rank %d failed (%v), stopping the other ranks", e.rank, e.err)
		killAll()
	}
	return code, first
}

// Self returns a launcher that re-executes the running binary.
func Self(stdout, stderr io.Writer) (*Launcher, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, common.Wrap(common.ResourceError, "launch", err)
	}
	return &Launcher{
		Path:   path,
		Args:   os.Args[1:],
		Env:    os.Environ(),
		Stdout: stdout,
		Stderr: stderr,
	}, nil
}
