// Package traci implements a client for SUMO's TraCI control protocol and exposes
// it as a monitor.Engine.
package traci

import (
	"context"
	"net"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dynroute/dynroute/monitor"
)

var _ monitor.Engine = (*Client)(nil)

// Client is a TraCI connection to a running simulator.
// Commands are serialized, so queries and Close may be issued from several
// goroutines. Commands issued after Close fail with ErrClosed.
type Client struct {
	conn       *conn
	proc       *process // nil when attached to a simulator started elsewhere
	APIVersion int
	Version    string
}

func newClient(nc net.Conn) *Client {
	return &Client{conn: newConn(nc)}
}

// handshake reads the server version.
func (c *Client) handshake(ctx context.Context) error {
	r, err := c.conn.exchange(ctx, cmdGetVersion, nil)
	if err != nil {
		return errors.Wrap(err, "getVersion")
	}
	if _, err := r.length(); err != nil {
		return errors.Wrap(err, "getVersion")
	}
	id, err := r.ubyte()
	if err != nil {
		return errors.Wrap(err, "getVersion")
	}
	if id != cmdGetVersion {
		return errors.Errorf("traci: unexpected version response 0x%02x", id)
	}
	api, err := r.int32()
	if err != nil {
		return errors.Wrap(err, "getVersion")
	}
	if c.Version, err = r.str(); err != nil {
		return errors.Wrap(err, "getVersion")
	}
	c.APIVersion = int(api)
	return nil
}

// get issues a get-variable command and decodes the typed value of its response.
func (c *Client) get(ctx context.Context, cmdID, varID byte, objID string, params func(*storage)) (any, error) {
	var s storage
	s.ubyte(varID)
	s.str(objID)
	if params != nil {
		params(&s)
	}
	r, err := c.conn.exchange(ctx, cmdID, s.bytes())
	if err != nil {
		return nil, err
	}
	if _, err := r.length(); err != nil {
		return nil, err
	}
	rid, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	if rid != cmdID+responseOffset {
		return nil, errors.Errorf("traci: response 0x%02x to command 0x%02x", rid, cmdID)
	}
	rvar, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	if rvar != varID {
		return nil, errors.Errorf("traci: response for variable 0x%02x, expected 0x%02x", rvar, varID)
	}
	robj, err := r.str()
	if err != nil {
		return nil, err
	}
	if robj != objID {
		return nil, errors.Errorf("traci: response for object %q, expected %q", robj, objID)
	}
	t, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	return r.value(t)
}

func (c *Client) set(ctx context.Context, cmdID, varID byte, objID string, value func(*storage)) error {
	var s storage
	s.ubyte(varID)
	s.str(objID)
	value(&s)
	_, err := c.conn.exchange(ctx, cmdID, s.bytes())
	return err
}

func typeMismatch(v any, want string) error {
	return errors.Errorf("traci: got %T, expected %s", v, want)
}

func (c *Client) getString(ctx context.Context, cmdID, varID byte, objID string) (string, error) {
	v, err := c.get(ctx, cmdID, varID, objID, nil)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", typeMismatch(v, "string")
	}
	return s, nil
}

func (c *Client) getDouble(ctx context.Context, cmdID, varID byte, objID string) (float64, error) {
	v, err := c.get(ctx, cmdID, varID, objID, nil)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, typeMismatch(v, "double")
	}
	return f, nil
}

func (c *Client) getInt(ctx context.Context, cmdID, varID byte, objID string) (int, error) {
	v, err := c.get(ctx, cmdID, varID, objID, nil)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int)
	if !ok {
		return 0, typeMismatch(v, "integer")
	}
	return i, nil
}

func (c *Client) getStringList(ctx context.Context, cmdID, varID byte, objID string) ([]string, error) {
	v, err := c.get(ctx, cmdID, varID, objID, nil)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]string)
	if !ok {
		return nil, typeMismatch(v, "string list")
	}
	return l, nil
}

func (c *Client) getPosition(ctx context.Context, cmdID, varID byte, objID string) (orb.Point, error) {
	v, err := c.get(ctx, cmdID, varID, objID, nil)
	if err != nil {
		return orb.Point{}, err
	}
	switch p := v.(type) {
	case [2]float64:
		return orb.Point(p), nil
	case [3]float64:
		return orb.Point{p[0], p[1]}, nil
	default:
		return orb.Point{}, typeMismatch(v, "position")
	}
}

// Step advances the simulation by one step.
func (c *Client) Step(ctx context.Context) error {
	var s storage
	s.double(0)
	r, err := c.conn.exchange(ctx, cmdSimStep, s.bytes())
	if err != nil {
		return errors.Wrap(err, "simulationStep")
	}
	if r.remaining() >= 4 {
		if n, _ := r.int32(); n > 0 {
			logrus.Debugf("Ignoring %d subscription results", n)
		}
	}
	return nil
}

// MinExpectedVehicles returns the number of vehicles in the network plus those
// still waiting to depart.
func (c *Client) MinExpectedVehicles(ctx context.Context) (int, error) {
	return c.getInt(ctx, cmdGetSimVariable, varMinExpected, "")
}

func (c *Client) VehicleIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, cmdGetVehicleVariable, varIDList, "")
}

func (c *Client) VehicleRoadID(ctx context.Context, vehicleID string) (string, error) {
	return c.getString(ctx, cmdGetVehicleVariable, varRoadID, vehicleID)
}

func (c *Client) VehicleSpeed(ctx context.Context, vehicleID string) (float64, error) {
	return c.getDouble(ctx, cmdGetVehicleVariable, varSpeed, vehicleID)
}

func (c *Client) VehiclePosition(ctx context.Context, vehicleID string) (orb.Point, error) {
	return c.getPosition(ctx, cmdGetVehicleVariable, varPosition, vehicleID)
}

func (c *Client) VehicleClass(ctx context.Context, vehicleID string) (string, error) {
	return c.getString(ctx, cmdGetVehicleVariable, varVehicleClass, vehicleID)
}

func (c *Client) VehicleRoute(ctx context.Context, vehicleID string) ([]string, error) {
	return c.getStringList(ctx, cmdGetVehicleVariable, varEdges, vehicleID)
}

// SetVehicleRoute replaces the vehicle's route. The first edge must be the
// vehicle's current edge.
func (c *Client) SetVehicleRoute(ctx context.Context, vehicleID string, edges []string) error {
	return c.set(ctx, cmdSetVehicleVariable, varRoute, vehicleID, func(s *storage) {
		s.typedStringList(edges)
	})
}

// EdgeOccupancy returns the occupied fraction of the edge, in [0, 1].
func (c *Client) EdgeOccupancy(ctx context.Context, edgeID string) (float64, error) {
	return c.getDouble(ctx, cmdGetEdgeVariable, varLastStepOccupancy, edgeID)
}

func (c *Client) EdgeMeanSpeed(ctx context.Context, edgeID string) (float64, error) {
	return c.getDouble(ctx, cmdGetEdgeVariable, varLastStepMeanSpeed, edgeID)
}

func (c *Client) EdgeHaltingNumber(ctx context.Context, edgeID string) (int, error) {
	return c.getInt(ctx, cmdGetEdgeVariable, varLastStepHalting, edgeID)
}

func (c *Client) LaneMaxSpeed(ctx context.Context, laneID string) (float64, error) {
	return c.getDouble(ctx, cmdGetLaneVariable, varMaxSpeed, laneID)
}

// FindRoute asks the simulator's router for the edges from fromEdge to toEdge
// for the default vehicle type departing now.
func (c *Client) FindRoute(ctx context.Context, fromEdge, toEdge string, mode monitor.RoutingMode) ([]string, error) {
	v, err := c.get(ctx, cmdGetSimVariable, varFindRoute, "", func(s *storage) {
		s.compound(5)
		s.typedString(fromEdge)
		s.typedString(toEdge)
		s.typedString("")
		s.typedDouble(-1)
		s.typedInt(int(mode))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "findRoute %s -> %s", fromEdge, toEdge)
	}
	stage, ok := v.([]any)
	if !ok {
		return nil, typeMismatch(v, "compound")
	}
	for _, item := range stage {
		if edges, ok := item.([]string); ok {
			return edges, nil
		}
	}
	return nil, errors.Errorf("traci: findRoute %s -> %s: no edge list in result", fromEdge, toEdge)
}

func (c *Client) TrafficLightIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, cmdGetTLVariable, varIDList, "")
}

func (c *Client) JunctionPosition(ctx context.Context, junctionID string) (orb.Point, error) {
	return c.getPosition(ctx, cmdGetJunctionVariable, varPosition, junctionID)
}

func (c *Client) SetTrafficLightPhase(ctx context.Context, tlsID string, phase int) error {
	return c.set(ctx, cmdSetTLVariable, varTLPhaseIndex, tlsID, func(s *storage) {
		s.typedInt(phase)
	})
}

// Close ends the session, closes the socket and stops a simulator started by Start.
// Calling Close more than once is a no-op.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), processStopTimeout)
	defer cancel()

	first, err := c.conn.shutdown(ctx)
	if !first {
		return nil
	}
	if c.proc != nil {
		if perr := c.proc.stop(processStopTimeout); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}
