package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrCollectorSpawn indicates the collector process could not be
	// started or died before binding its endpoint. Fatal for the batch.
	ErrCollectorSpawn = errors.New("collector spawn failed")
	// ErrScratchNotEmpty indicates a caller violated the precondition
	// that a session starts against an empty scratch directory.
	ErrScratchNotEmpty = errors.New("scratch directory not empty")
	// ErrFlushTimeout indicates the collector did not exit within the
	// stop wait after being signaled; its scratch output may be
	// incomplete.
	ErrFlushTimeout = errors.New("collector did not exit before flush deadline")
)

const (
	defaultCollectorBin = "nfcapd"
	defaultBindWait     = 2 * time.Second
	defaultStopWait     = 10 * time.Second
	bindProbeInterval   = 25 * time.Millisecond
)

// Config controls how collector sessions are launched.
type Config struct {
	// CollectorBin is the collector executable name or path.
	CollectorBin string
	// BindWait bounds how long Start waits for the collector to bind
	// its endpoint before proceeding anyway.
	BindWait time.Duration
	// StopWait bounds how long Stop waits for the signaled collector
	// to exit and flush its scratch output.
	StopWait time.Duration
}

// Launcher starts collector sessions. At most one session should be
// active at a time; that exclusivity is the orchestrator's contract,
// not enforced here.
type Launcher struct {
	cfg Config
}

// NewLauncher fills zero config fields with defaults.
func NewLauncher(cfg Config) *Launcher {
	if cfg.CollectorBin == "" {
		cfg.CollectorBin = defaultCollectorBin
	}
	if cfg.BindWait <= 0 {
		cfg.BindWait = defaultBindWait
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = defaultStopWait
	}
	return &Launcher{cfg: cfg}
}

// Session is one running collector process bound to a UDP endpoint and
// writing intermediate capture files into its scratch directory. The
// scratch contents belong exclusively to this session until Stop
// returns.
type Session struct {
	endpoint string
	scratch  string
	cmd      *exec.Cmd
	waitErr  chan error
	stopWait time.Duration
	stopped  bool
}

// Start launches a collector bound to endpoint ("host:port", UDP)
// writing into scratchDir. The directory is created if absent and must
// be empty. Start returns once the endpoint is confirmed bound, or
// after the bounded bind wait if confirmation never arrives while the
// process stays alive.
func (l *Launcher) Start(ctx context.Context, endpoint, scratchDir string) (*Session, error) {
	if err := ensureEmptyDir(scratchDir); err != nil {
		return nil, err
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endpoint %q: %v", ErrCollectorSpawn, endpoint, err)
	}

	cmd := exec.Command(l.cfg.CollectorBin, "-b", host, "-p", port, "-l", scratchDir)
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollectorSpawn, err)
	}

	s := &Session{
		endpoint: endpoint,
		scratch:  scratchDir,
		cmd:      cmd,
		waitErr:  make(chan error, 1),
		stopWait: l.cfg.StopWait,
	}
	go func() { s.waitErr <- cmd.Wait() }()

	if err := s.awaitBind(ctx, l.cfg.BindWait); err != nil {
		// Never leak the child on an error path.
		_ = s.Stop(context.Background())
		return nil, err
	}
	log.Debug().Str("endpoint", endpoint).Str("scratch", scratchDir).
		Int("pid", cmd.Process.Pid).Msg("collector session started")
	return s, nil
}

// awaitBind polls until the collector occupies its UDP endpoint. The
// probe binds the endpoint itself: an address-in-use failure proves
// the collector is listening. Elapsing the wait with the process still
// alive is not an error; the process exiting is.
func (s *Session) awaitBind(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		select {
		case err := <-s.waitErr:
			s.stopped = true
			return fmt.Errorf("%w: collector exited during startup: %v", ErrCollectorSpawn, err)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pc, err := net.ListenPacket("udp", s.endpoint)
		if err != nil {
			// Endpoint occupied: the collector got there.
			return nil
		}
		pc.Close()
		if time.Now().After(deadline) {
			log.Debug().Str("endpoint", s.endpoint).
				Msg("bind not confirmed within wait, proceeding")
			return nil
		}
		time.Sleep(bindProbeInterval)
	}
}

// Stop signals the collector to terminate and waits for it to exit so
// buffered flow state is flushed to the scratch directory before the
// caller reads it. Calling Stop with no running process is a no-op.
// If the process ignores the signal past the stop wait it is killed
// and ErrFlushTimeout is returned; callers log rather than escalate.
func (s *Session) Stop(ctx context.Context) error {
	if s == nil || s.stopped || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.stopped = true

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; drain Wait so the process is reaped.
		<-s.waitErr
		return nil
	}
	select {
	case <-s.waitErr:
		log.Debug().Str("endpoint", s.endpoint).Msg("collector session stopped")
		return nil
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-s.waitErr
		return ctx.Err()
	case <-time.After(s.stopWait):
		_ = s.cmd.Process.Kill()
		<-s.waitErr
		return fmt.Errorf("%w after %s", ErrFlushTimeout, s.stopWait)
	}
}

// Endpoint returns the UDP endpoint the collector is bound to.
func (s *Session) Endpoint() string { return s.endpoint }

// ScratchDir returns the directory the collector writes into.
func (s *Session) ScratchDir() string { return s.scratch }

// ensureEmptyDir creates dir if absent and fails if it has contents.
func ensureEmptyDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrCollectorSpawn, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCollectorSpawn, err)
	}
	if len(entries) > 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return fmt.Errorf("%w: %s contains %s", ErrScratchNotEmpty, dir, strings.Join(names, ", "))
	}
	return nil
}
