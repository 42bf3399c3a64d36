package traci

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchConfig_Args(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.ExtraArgs = []string{"--step-length", "0.5"}

	assert.Equal(t,
		[]string{"-c", "config/simulation.sumocfg", "--remote-port", "8813", "--step-length", "0.5"},
		lc.Args(8813))
	assert.Equal(t, "sumo-gui", lc.Binary)
}

func TestFreePort(t *testing.T) {
	port, err := freePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}

func TestDialRetry_GivesUp(t *testing.T) {
	// GIVEN a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	// WHEN dialing with two retries
	_, err = dialRetry(context.Background(), addr, 2, time.Millisecond)

	// THEN the attempts are reported
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestStart_MissingBinary(t *testing.T) {
	lc := DefaultLaunchConfig()
	lc.Binary = "dynroute-no-such-simulator"
	lc.ConfigFile = filepath.Join(t.TempDir(), "simulation.sumocfg")
	require.NoError(t, os.WriteFile(lc.ConfigFile, []byte("<configuration/>"), 0o644))

	_, err := Start(context.Background(), lc)

	assert.ErrorContains(t, err, "starting dynroute-no-such-simulator")
}

func TestStart_MissingConfigFile(t *testing.T) {
	// GIVEN a launch configuration pointing at a .sumocfg that does not exist
	lc := DefaultLaunchConfig()
	lc.ConfigFile = filepath.Join(t.TempDir(), "missing.sumocfg")

	// WHEN starting
	_, err := Start(context.Background(), lc)

	// THEN the missing file is reported before any process is launched
	assert.ErrorContains(t, err, "SUMO configuration "+lc.ConfigFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
