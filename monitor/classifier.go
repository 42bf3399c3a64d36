package monitor

import (
	"context"
	"fmt"
	"strings"
)

const (
	// ClassifierVehicleClass flags vehicles whose simulator vehicle class matches.
	ClassifierVehicleClass = "vehicle-class"
	// ClassifierIDMarker flags vehicles whose id contains a marker substring.
	ClassifierIDMarker = "id-marker"
)

// validClassifiers maps accepted classifier names. Empty defaults to vehicle-class.
var validClassifiers = map[string]bool{
	"":                     true,
	ClassifierVehicleClass: true,
	ClassifierIDMarker:     true,
}

// IsValidClassifier returns true if name is a recognized classifier.
func IsValidClassifier(name string) bool {
	return validClassifiers[name]
}

// VehicleClassifier decides whether a vehicle is monitored and rerouted.
type VehicleClassifier interface {
	Flagged(ctx context.Context, vehicles VehicleQuerier, vehicleID string) (bool, error)
}

// ClassMatch flags vehicles whose vehicle class (vClass) equals Class.
type ClassMatch struct {
	Class string
}

func (c *ClassMatch) Flagged(ctx context.Context, vehicles VehicleQuerier, vehicleID string) (bool, error) {
	class, err := vehicles.VehicleClass(ctx, vehicleID)
	if err != nil {
		return false, fmt.Errorf("reading class of %s: %w", vehicleID, err)
	}
	return class == c.Class, nil
}

// IDMarker flags vehicles whose id contains Marker. Kept for scenarios that encode
// the category in vehicle ids instead of vehicle classes.
type IDMarker struct {
	Marker string
}

func (m *IDMarker) Flagged(_ context.Context, _ VehicleQuerier, vehicleID string) (bool, error) {
	return strings.Contains(vehicleID, m.Marker), nil
}

// NewVehicleClassifier creates a classifier by name.
// An empty name defaults to vehicle-class.
// Panics on unrecognized names.
func NewVehicleClassifier(name, category string) VehicleClassifier {
	if !IsValidClassifier(name) {
		panic(fmt.Sprintf("unknown classifier %q", name))
	}
	switch name {
	case "", ClassifierVehicleClass:
		return &ClassMatch{Class: category}
	case ClassifierIDMarker:
		return &IDMarker{Marker: category}
	default:
		panic(fmt.Sprintf("unhandled classifier %q", name))
	}
}
