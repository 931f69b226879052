package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// earthRadiusM is the sphere radius used for radial unit searches.
const earthRadiusM = 6378100.0

// Circle is a search area on the sphere: a lng/lat centre and a radius in
// metres.
type Circle struct {
	Lng     float64
	Lat     float64
	RadiusM float64
}

// Validate checks the centre is a real position and the radius is positive.
func (c Circle) Validate() error {
	switch {
	case c.Lng < -180 || c.Lng > 180:
		return fmt.Errorf("%w: lng must be between -180 and 180", ErrInvalidArgument)
	case c.Lat < -90 || c.Lat > 90:
		return fmt.Errorf("%w: lat must be between -90 and 90", ErrInvalidArgument)
	case c.RadiusM <= 0 || math.IsInf(c.RadiusM, 0) || math.IsNaN(c.RadiusM):
		return fmt.Errorf("%w: radius_m must be positive", ErrInvalidArgument)
	}
	return nil
}

// Contains reports whether the position lies within the circle.
func (c Circle) Contains(lng, lat float64) bool {
	return HaversineMeters(c.Lng, c.Lat, lng, lat) <= c.RadiusM
}

// ContainsGeometry reports whether every position of a GeoJSON geometry lies
// within the circle. A geometry without positions is never contained.
func (c Circle) ContainsGeometry(geom json.RawMessage) (bool, error) {
	positions, err := GeometryPositions(geom)
	if err != nil {
		return false, err
	}
	if len(positions) == 0 {
		return false, nil
	}
	for _, p := range positions {
		if !c.Contains(p[0], p[1]) {
			return false, nil
		}
	}
	return true, nil
}

// HaversineMeters is the great-circle distance between two lng/lat positions.
func HaversineMeters(lng1, lat1, lng2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(a)))
}

type geometryDoc struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []json.RawMessage `json:"geometries"`
}

// GeometryPositions flattens a GeoJSON geometry into its [lng, lat]
// positions. Point, LineString, Polygon, their Multi forms and
// GeometryCollection are supported.
func GeometryPositions(geom json.RawMessage) ([][2]float64, error) {
	var doc geometryDoc
	if err := json.Unmarshal(geom, &doc); err != nil {
		return nil, fmt.Errorf("%w: geometry is not a GeoJSON object: %v", ErrInvalidArgument, err)
	}

	depth := map[string]int{
		"point":           0,
		"multipoint":      1,
		"linestring":      1,
		"multilinestring": 2,
		"polygon":         2,
		"multipolygon":    3,
	}
	kind := strings.ToLower(doc.Type)
	if kind == "geometrycollection" {
		var out [][2]float64
		for _, g := range doc.Geometries {
			ps, err := GeometryPositions(g)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	}
	d, ok := depth[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported geometry type %q", ErrInvalidArgument, doc.Type)
	}

	var coords any
	if err := json.Unmarshal(doc.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("%w: %s coordinates: %v", ErrInvalidArgument, doc.Type, err)
	}
	var out [][2]float64
	if err := collectPositions(coords, d, &out); err != nil {
		return nil, fmt.Errorf("%w: %s coordinates: %v", ErrInvalidArgument, doc.Type, err)
	}
	return out, nil
}

// collectPositions walks depth levels of nesting down to positions.
func collectPositions(v any, depth int, out *[][2]float64) error {
	arr, ok := v.([]any)
	if !ok {
		return fmt.Errorf("expected an array")
	}
	if depth > 0 {
		for _, item := range arr {
			if err := collectPositions(item, depth-1, out); err != nil {
				return err
			}
		}
		return nil
	}
	if len(arr) < 2 {
		return fmt.Errorf("position needs lng and lat")
	}
	lng, ok1 := arr[0].(float64)
	lat, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return fmt.Errorf("position must be numeric")
	}
	*out = append(*out, [2]float64{lng, lat})
	return nil
}

// Validate checks a unit is complete enough to register: an id, a name and
// a geometry with at least one position.
func (u SpatialUnit) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if !u.HasGeometry() {
		return fmt.Errorf("%w: geom is required", ErrInvalidArgument)
	}
	positions, err := GeometryPositions(u.Geom)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return fmt.Errorf("%w: geom has no positions", ErrInvalidArgument)
	}
	return nil
}
