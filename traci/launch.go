package traci

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const processStopTimeout = 5 * time.Second

// LaunchConfig describes how to start a simulator process.
type LaunchConfig struct {
	Binary     string   // "sumo" or "sumo-gui"
	ConfigFile string   // .sumocfg passed with -c
	Host       string   // host the simulator listens on
	Port       int      // remote port; 0 picks a free one
	ExtraArgs  []string // appended after the generated arguments
	Retries    int      // connection attempts while the simulator starts
	RetryDelay time.Duration
}

// DefaultLaunchConfig returns the launch settings used when none are configured.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		Binary:     "sumo-gui",
		ConfigFile: "config/simulation.sumocfg",
		Host:       "localhost",
		Retries:    60,
		RetryDelay: 250 * time.Millisecond,
	}
}

// Args returns the simulator command line for the given port.
func (lc LaunchConfig) Args(port int) []string {
	args := []string{"-c", lc.ConfigFile, "--remote-port", strconv.Itoa(port)}
	return append(args, lc.ExtraArgs...)
}

// process is a simulator started by Start. Its output is forwarded to the logger.
type process struct {
	cmd *exec.Cmd
	out *io.PipeWriter
}

func (p *process) stop(timeout time.Duration) error {
	defer func() { _ = p.out.Close() }()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "simulator exited")
		}
		return nil
	case <-time.After(timeout):
		logrus.Warnf("Simulator did not exit within %v, killing it", timeout)
		_ = p.cmd.Process.Kill()
		<-done
		return nil
	}
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Start launches the simulator and connects to it.
// The process is stopped when the returned Client is closed.
func Start(ctx context.Context, lc LaunchConfig) (*Client, error) {
	if _, err := os.Stat(lc.ConfigFile); err != nil {
		return nil, errors.Wrapf(err, "SUMO configuration %s", lc.ConfigFile)
	}
	port := lc.Port
	if port == 0 {
		var err error
		if port, err = freePort(); err != nil {
			return nil, errors.Wrap(err, "finding a free port")
		}
	}

	cmd := exec.Command(lc.Binary, lc.Args(port)...)
	out := logrus.StandardLogger().WriterLevel(logrus.DebugLevel)
	cmd.Stdout = out
	cmd.Stderr = out
	logrus.Infof("Starting %s %v", lc.Binary, cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		_ = out.Close()
		return nil, errors.Wrapf(err, "starting %s", lc.Binary)
	}
	proc := &process{cmd: cmd, out: out}

	addr := net.JoinHostPort(lc.Host, strconv.Itoa(port))
	nc, err := dialRetry(ctx, addr, lc.Retries, lc.RetryDelay)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = proc.stop(processStopTimeout)
		return nil, err
	}
	c := newClient(nc)
	c.proc = proc
	if err := c.handshake(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	logrus.Infof("TraCI connected successfully (API %d, %s).", c.APIVersion, c.Version)
	return c, nil
}

// Connect attaches to a simulator already listening on addr (host:port).
func Connect(ctx context.Context, addr string, retries int, delay time.Duration) (*Client, error) {
	nc, err := dialRetry(ctx, addr, retries, delay)
	if err != nil {
		return nil, err
	}
	c := newClient(nc)
	if err := c.handshake(ctx); err != nil {
		_ = c.conn.abort()
		return nil, err
	}
	logrus.Infof("TraCI connected successfully to %s (API %d, %s).", addr, c.APIVersion, c.Version)
	return c, nil
}

// dialRetry dials addr until it succeeds, retries are exhausted or ctx ends.
func dialRetry(ctx context.Context, addr string, retries int, delay time.Duration) (net.Conn, error) {
	var d net.Dialer
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return nc, nil
		}
		lastErr = err
		logrus.Debugf("Dial %s attempt %d failed: %v", addr, attempt+1, err)
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "connecting to %s", addr)
		case <-time.After(delay):
		}
	}
	return nil, errors.Wrapf(lastErr, "connecting to %s after %d attempts", addr, retries+1)
}
