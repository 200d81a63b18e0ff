package backend

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersection"
	"github.com/twpayne/go-geom/xy/lineintersector"
	"github.com/twpayne/go-geom/xy/location"
)

var robust = lineintersector.RobustLineIntersector{}

// shape is a geometry flattened into the parts the spatial predicates walk.
type shape struct {
	bounds   *geom.Bounds
	points   []geom.Coord
	lines    [][]geom.Coord
	polygons []*geom.Polygon
	edges    [][2]geom.Coord
}

func newShape(g geom.T) (*shape, error) {
	s := &shape{bounds: g.Bounds()}
	if err := s.add(g); err != nil {
		return nil, err
	}
	for _, line := range s.lines {
		s.addEdges(line)
	}
	for _, p := range s.polygons {
		for i := 0; i < p.NumLinearRings(); i++ {
			s.addEdges(coordsOf(p.LinearRing(i).Layout(), p.LinearRing(i).FlatCoords()))
		}
	}
	return s, nil
}

func (s *shape) add(g geom.T) error {
	switch g := g.(type) {
	case *geom.Point:
		if len(g.FlatCoords()) > 0 {
			s.points = append(s.points, geom.Coord{g.X(), g.Y()})
		}
	case *geom.MultiPoint:
		for i := 0; i < g.NumPoints(); i++ {
			if err := s.add(g.Point(i)); err != nil {
				return err
			}
		}
	case *geom.LineString:
		if g.NumCoords() > 0 {
			s.lines = append(s.lines, coordsOf(g.Layout(), g.FlatCoords()))
		}
	case *geom.MultiLineString:
		for i := 0; i < g.NumLineStrings(); i++ {
			if err := s.add(g.LineString(i)); err != nil {
				return err
			}
		}
	case *geom.Polygon:
		if g.NumLinearRings() > 0 && g.LinearRing(0).NumCoords() > 0 {
			s.polygons = append(s.polygons, g)
		}
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			if err := s.add(g.Polygon(i)); err != nil {
				return err
			}
		}
	case *geom.GeometryCollection:
		for _, sub := range g.Geoms() {
			if err := s.add(sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: geometry %T", ErrUnsupportedExpression, g)
	}
	return nil
}

func (s *shape) addEdges(line []geom.Coord) {
	for i := 1; i < len(line); i++ {
		s.edges = append(s.edges, [2]geom.Coord{line[i-1], line[i]})
	}
}

func (s *shape) empty() bool {
	return len(s.points) == 0 && len(s.lines) == 0 && len(s.polygons) == 0
}

// anchors returns one vertex per component. A component that meets the
// other shape without any edge crossing has its anchor inside it.
func (s *shape) anchors() []geom.Coord {
	out := append([]geom.Coord(nil), s.points...)
	for _, line := range s.lines {
		out = append(out, line[0])
	}
	for _, p := range s.polygons {
		shell := p.LinearRing(0)
		out = append(out, coordsOf(shell.Layout(), shell.FlatCoords())[0])
	}
	return out
}

// samples returns every vertex plus the midpoint of every edge.
func (s *shape) samples() []geom.Coord {
	out := append([]geom.Coord(nil), s.points...)
	for _, e := range s.edges {
		out = append(out, e[0], e[1], geom.Coord{(e[0][0] + e[1][0]) / 2, (e[0][1] + e[1][1]) / 2})
	}
	return out
}

// covers reports whether p lies in the interior or on the boundary of s.
func (s *shape) covers(p geom.Coord) bool {
	for _, q := range s.points {
		if q[0] == p[0] && q[1] == p[1] {
			return true
		}
	}
	for _, e := range s.edges {
		if lineintersector.PointIntersectsLine(robust, p, e[0], e[1]) {
			return true
		}
	}
	for _, poly := range s.polygons {
		if locate(p, poly) != location.Exterior {
			return true
		}
	}
	return false
}

// locate places p relative to a polygon, holes included.
func locate(p geom.Coord, poly *geom.Polygon) location.Type {
	shell := poly.LinearRing(0)
	loc := xy.LocatePointInRing(shell.Layout(), p, shell.FlatCoords())
	if loc != location.Interior {
		return loc
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		hole := poly.LinearRing(i)
		switch xy.LocatePointInRing(hole.Layout(), p, hole.FlatCoords()) {
		case location.Interior:
			return location.Exterior
		case location.Boundary:
			return location.Boundary
		}
	}
	return location.Interior
}

// intersects reports whether a and b share at least one point. The
// envelope test runs first.
func intersects(a, b *shape) bool {
	if a.empty() || b.empty() || !overlaps(a.bounds, b.bounds) {
		return false
	}
	for _, ea := range a.edges {
		for _, eb := range b.edges {
			r := lineintersector.LineIntersectsLine(robust, ea[0], ea[1], eb[0], eb[1])
			if r.HasIntersection() {
				return true
			}
		}
	}
	for _, p := range a.anchors() {
		if b.covers(p) {
			return true
		}
	}
	for _, p := range b.anchors() {
		if a.covers(p) {
			return true
		}
	}
	return false
}

// within reports whether every point of a lies in b. Vertices and edge
// midpoints of a must be covered by b, no edge of a may cross an edge of b
// away from their endpoints, and no hole of b may sit inside a.
func within(a, b *shape) bool {
	if a.empty() || b.empty() || !inside(a.bounds, b.bounds) {
		return false
	}
	for _, p := range a.samples() {
		if !b.covers(p) {
			return false
		}
	}
	for _, ea := range a.edges {
		for _, eb := range b.edges {
			if crossesProperly(ea, eb) {
				return false
			}
		}
	}
	for _, poly := range b.polygons {
		for i := 1; i < poly.NumLinearRings(); i++ {
			hole := poly.LinearRing(i)
			if hole.NumCoords() == 0 {
				continue
			}
			v := coordsOf(hole.Layout(), hole.FlatCoords())[0]
			for _, pa := range a.polygons {
				if locate(v, pa) == location.Interior {
					return false
				}
			}
		}
	}
	return true
}

func crossesProperly(ea, eb [2]geom.Coord) bool {
	r := lineintersector.LineIntersectsLine(robust, ea[0], ea[1], eb[0], eb[1])
	if r.Type() != lineintersection.PointIntersection {
		return false
	}
	p := r.Intersection()[0]
	for _, end := range [...]geom.Coord{ea[0], ea[1], eb[0], eb[1]} {
		if p[0] == end[0] && p[1] == end[1] {
			return false
		}
	}
	return true
}

// overlaps reports whether two envelopes share at least one point.
func overlaps(a, b *geom.Bounds) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Min(0) <= b.Max(0) && b.Min(0) <= a.Max(0) &&
		a.Min(1) <= b.Max(1) && b.Min(1) <= a.Max(1)
}

// inside reports whether envelope a lies within envelope b.
func inside(a, b *geom.Bounds) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Min(0) >= b.Min(0) && a.Max(0) <= b.Max(0) &&
		a.Min(1) >= b.Min(1) && a.Max(1) <= b.Max(1)
}

// coordsOf splits flat coordinates into XY pairs.
func coordsOf(layout geom.Layout, flat []float64) []geom.Coord {
	stride := layout.Stride()
	out := make([]geom.Coord, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, geom.Coord{flat[i], flat[i+1]})
	}
	return out
}
