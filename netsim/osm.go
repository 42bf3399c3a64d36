package netsim

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

// osmScanner is the part of the osmxml and osmpbf scanners used here.
type osmScanner interface {
	Scan() bool
	Close() error
	Err() error
	Object() osm.Object
}

// defaultHighwaySpeed holds the speed (km/h) of drivable highway types without a maxspeed tag.
var defaultHighwaySpeed = map[string]float64{
	"motorway":       120,
	"motorway_link":  80,
	"trunk":          100,
	"trunk_link":     60,
	"primary":        60,
	"primary_link":   50,
	"secondary":      50,
	"secondary_link": 50,
	"tertiary":       50,
	"tertiary_link":  40,
	"unclassified":   40,
	"residential":    30,
	"living_street":  10,
	"service":        20,
}

// LoadOSMXML reads a network from an OSM XML document.
func LoadOSMXML(r io.Reader) (*Network, error) {
	scanner := osmxml.New(context.Background(), r)
	defer func() { _ = scanner.Close() }()
	return loadOSM(scanner)
}

// LoadOSMPBF reads a network from an OSM PBF extract.
func LoadOSMPBF(r io.Reader) (*Network, error) {
	scanner := osmpbf.New(context.Background(), r, 1)
	defer func() { _ = scanner.Close() }()
	return loadOSM(scanner)
}

type osmWay struct {
	id      osm.WayID
	nodes   []osm.NodeID
	tags    osm.Tags
	forward bool
	back    bool
}

func isTrafficSignal(n *osm.Node) bool {
	return n.Tags.Find("highway") == "traffic_signals"
}

// loadOSM builds a network from drivable ways. Ways are split at nodes shared
// with other ways and at traffic signals; segment i of way W becomes edge "W#i" and, for two-way
// roads, "-W#i" in the opposite direction, matching SUMO's netconvert naming.
// Coordinates are projected to meters east/north of the south-west corner.
func loadOSM(scanner osmScanner) (*Network, error) {
	nodes := make(map[osm.NodeID]*osm.Node)
	var ways []osmWay
	for scanner.Scan() {
		switch obj := scanner.Object().(type) {
		case *osm.Node:
			nodes[obj.ID] = obj
		case *osm.Way:
			hw := obj.Tags.Find("highway")
			if _, ok := defaultHighwaySpeed[hw]; !ok {
				continue
			}
			fwd, back := osmDirections(obj.Tags)
			w := osmWay{id: obj.ID, tags: obj.Tags, forward: fwd, back: back}
			for _, wn := range obj.Nodes {
				w.nodes = append(w.nodes, wn.ID)
			}
			ways = append(ways, w)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning OSM")
	}
	if len(ways) == 0 {
		return nil, errors.New("no drivable ways in OSM data")
	}

	uses := make(map[osm.NodeID]int)
	for _, w := range ways {
		for i, id := range w.nodes {
			if _, ok := nodes[id]; !ok {
				return nil, errors.Wrapf(ErrNotFound, "way %d: node %d", w.id, id)
			}
			uses[id]++
			if i == 0 || i == len(w.nodes)-1 || isTrafficSignal(nodes[id]) {
				uses[id]++
			}
		}
	}

	origin := southWest(nodes, uses)
	net := NewNetwork()
	ensureJunction := func(id osm.NodeID) error {
		key := strconv.FormatInt(int64(id), 10)
		if _, ok := net.Junctions[key]; ok {
			return nil
		}
		n := nodes[id]
		return net.AddJunction(Junction{
			ID:           key,
			Position:     project(origin, n),
			TrafficLight: isTrafficSignal(n),
		})
	}

	for _, w := range ways {
		speed := osmSpeed(w.tags)
		lanes := osmLanes(w.tags, w.forward && w.back)
		seg := 0
		start := 0
		for i := 1; i < len(w.nodes); i++ {
			if uses[w.nodes[i]] < 2 && i != len(w.nodes)-1 {
				continue
			}
			path := w.nodes[start : i+1]
			if err := ensureJunction(path[0]); err != nil {
				return nil, err
			}
			if err := ensureJunction(path[len(path)-1]); err != nil {
				return nil, err
			}
			shape, length := osmShape(origin, nodes, path)
			from := strconv.FormatInt(int64(path[0]), 10)
			to := strconv.FormatInt(int64(path[len(path)-1]), 10)
			id := strconv.FormatInt(int64(w.id), 10) + "#" + strconv.Itoa(seg)
			if w.forward {
				if err := net.AddEdge(Edge{ID: id, From: from, To: to, Length: length, MaxSpeed: speed, Lanes: lanes, Shape: shape}); err != nil {
					return nil, err
				}
			}
			if w.back {
				rev := append(orb.LineString(nil), shape...)
				rev.Reverse()
				if err := net.AddEdge(Edge{ID: "-" + id, From: to, To: from, Length: length, MaxSpeed: speed, Lanes: lanes, Shape: rev}); err != nil {
					return nil, err
				}
			}
			seg++
			start = i
		}
	}
	return net, nil
}

// osmDirections reports whether a way may be driven along and against its node order.
func osmDirections(tags osm.Tags) (forward, back bool) {
	switch tags.Find("oneway") {
	case "yes", "1", "true":
		return true, false
	case "-1", "reverse":
		return false, true
	case "no", "0", "false":
		return true, true
	}
	if tags.Find("junction") == "roundabout" || tags.Find("highway") == "motorway" {
		return true, false
	}
	return true, true
}

// osmSpeed parses maxspeed ("50", "30 mph") into m/s, falling back to the highway type.
func osmSpeed(tags osm.Tags) float64 {
	kmh := defaultHighwaySpeed[tags.Find("highway")]
	if raw := strings.TrimSpace(tags.Find("maxspeed")); raw != "" {
		fields := strings.Fields(raw)
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil && v > 0 {
			kmh = v
			if len(fields) > 1 && fields[1] == "mph" {
				kmh = v * 1.609344
			}
		}
	}
	return kmh / 3.6
}

// osmLanes returns the lanes per direction.
func osmLanes(tags osm.Tags, twoWay bool) int {
	n, err := strconv.Atoi(tags.Find("lanes"))
	if err != nil || n <= 0 {
		return 1
	}
	if twoWay {
		n = (n + 1) / 2
	}
	return n
}

func osmShape(origin orb.Point, nodes map[osm.NodeID]*osm.Node, path []osm.NodeID) (orb.LineString, float64) {
	shape := make(orb.LineString, 0, len(path))
	var length float64
	for i, id := range path {
		n := nodes[id]
		shape = append(shape, project(origin, n))
		if i > 0 {
			prev := nodes[path[i-1]]
			length += geo.Distance(orb.Point{prev.Lon, prev.Lat}, orb.Point{n.Lon, n.Lat})
		}
	}
	return shape, length
}

// southWest returns the lon/lat corner of the nodes in use.
func southWest(nodes map[osm.NodeID]*osm.Node, uses map[osm.NodeID]int) orb.Point {
	corner := orb.Point{math.Inf(1), math.Inf(1)}
	for id := range uses {
		n := nodes[id]
		corner[0] = math.Min(corner[0], n.Lon)
		corner[1] = math.Min(corner[1], n.Lat)
	}
	return corner
}

// project maps a node to meters east and north of origin.
func project(origin orb.Point, n *osm.Node) orb.Point {
	x := geo.Distance(orb.Point{origin[0], n.Lat}, orb.Point{n.Lon, n.Lat})
	y := geo.Distance(origin, orb.Point{origin[0], n.Lat})
	return orb.Point{x, y}
}
