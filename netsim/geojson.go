package netsim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// LoadGeoJSON reads a network from a GeoJSON FeatureCollection in planar
// (meter) coordinates, the way SUMO network coordinates are laid out.
//
// Point features are junctions with properties "id", optional "traffic_light"
// (bool) and "phases". LineString features are edges with properties "id",
// "from", "to" and optional "speed" (m/s), "lanes" and "length" (m).
func LoadGeoJSON(r io.Reader) (*Network, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading GeoJSON")
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing GeoJSON")
	}

	net := NewNetwork()
	var edges []Edge
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, errors.Errorf("feature %d has no geometry", i)
		}
		id := featureID(f)
		switch {
		case f.Geometry.IsPoint():
			p := f.Geometry.Point
			if len(p) < 2 {
				return nil, errors.Errorf("junction %q: point needs two coordinates", id)
			}
			j := Junction{
				ID:           id,
				Position:     orb.Point{p[0], p[1]},
				TrafficLight: f.PropertyMustBool("traffic_light", false),
				Phases:       int(f.PropertyMustFloat64("phases", 0)),
			}
			if err := net.AddJunction(j); err != nil {
				return nil, err
			}
		case f.Geometry.IsLineString():
			shape := make(orb.LineString, 0, len(f.Geometry.LineString))
			for _, c := range f.Geometry.LineString {
				if len(c) < 2 {
					return nil, errors.Errorf("edge %q: coordinate needs two values", id)
				}
				shape = append(shape, orb.Point{c[0], c[1]})
			}
			edges = append(edges, Edge{
				ID:       id,
				From:     f.PropertyMustString("from", ""),
				To:       f.PropertyMustString("to", ""),
				Length:   f.PropertyMustFloat64("length", 0),
				MaxSpeed: f.PropertyMustFloat64("speed", 0),
				Lanes:    int(f.PropertyMustFloat64("lanes", 0)),
				Shape:    shape,
			})
		default:
			return nil, errors.Errorf("feature %q: unsupported geometry %s", id, f.Geometry.Type)
		}
	}

	// Junctions may follow the edges that use them.
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	for _, e := range edges {
		if err := net.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return net, nil
}

func featureID(f *geojson.Feature) string {
	if id := f.PropertyMustString("id", ""); id != "" {
		return id
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}

// LoadNetworkFile opens a network by extension: .geojson/.json, .osm/.xml or .pbf.
func LoadNetworkFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening network")
	}
	defer func() { _ = f.Close() }()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		return LoadGeoJSON(f)
	case ".osm", ".xml":
		return LoadOSMXML(f)
	case ".pbf":
		return LoadOSMPBF(f)
	default:
		return nil, errors.Errorf("network file extension %q is not handled", ext)
	}
}
