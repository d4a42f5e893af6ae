package geo

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// ValidateRing accepts closed simple rings: at least 4 positions, first equal
// to last, at least 3 distinct vertices, non-zero area and no two
// non-adjacent edges touching or crossing.
func ValidateRing(r orb.Ring) error {
	if len(r) < 4 {
		return fmt.Errorf("%w: need at least 4 positions, got %d", ErrInvalidRing, len(r))
	}
	for i, p := range r {
		if err := ValidatePoint(p.Lat(), p.Lon()); err != nil {
			return fmt.Errorf("%w: position %d: %v", ErrInvalidRing, i, err)
		}
	}
	if !r.Closed() {
		return fmt.Errorf("%w: first and last positions differ", ErrInvalidRing)
	}
	if distinctVertices(r) < 3 {
		return fmt.Errorf("%w: need at least 3 distinct vertices", ErrInvalidRing)
	}
	if signedArea(r) == 0 {
		return fmt.Errorf("%w: ring has zero area", ErrInvalidRing)
	}
	if selfIntersects(r) {
		return fmt.Errorf("%w: ring intersects itself", ErrInvalidRing)
	}
	return nil
}

func ValidatePolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return fmt.Errorf("%w: at least one ring is required", ErrInvalidPolygon)
	}
	for i, r := range poly {
		if err := ValidateRing(r); err != nil {
			return fmt.Errorf("%w: ring %d: %w", ErrInvalidPolygon, i, err)
		}
	}
	return nil
}

// PolygonFromCoordinates converts GeoJSON polygon coordinates. Positions
// carrying altitude keep only lng and lat.
func PolygonFromCoordinates(coordinates [][][]float64) (orb.Polygon, error) {
	if len(coordinates) == 0 {
		return nil, fmt.Errorf("%w: at least one ring is required", ErrInvalidPolygon)
	}
	poly := make(orb.Polygon, 0, len(coordinates))
	for i, ring := range coordinates {
		r, err := RingFromCoordinates(ring)
		if err != nil {
			return nil, fmt.Errorf("%w: ring %d: %w", ErrInvalidPolygon, i, err)
		}
		poly = append(poly, r)
	}
	return poly, nil
}

func RingFromCoordinates(coordinates [][]float64) (orb.Ring, error) {
	r := make(orb.Ring, 0, len(coordinates))
	for i, pos := range coordinates {
		if len(pos) < 2 {
			return nil, fmt.Errorf("%w: position %d needs [lng, lat]", ErrInvalidRing, i)
		}
		r = append(r, orb.Point{pos[0], pos[1]})
	}
	return r, nil
}

// ParseCoordinates decodes a JSON coordinates value holding either a whole
// polygon ([[[lng, lat], ...], ...]) or a single outer ring ([[lng, lat], ...]).
func ParseCoordinates(data []byte) (orb.Polygon, error) {
	var polygon [][][]float64
	if err := json.Unmarshal(data, &polygon); err == nil {
		return PolygonFromCoordinates(polygon)
	}

	var ring [][]float64
	if err := json.Unmarshal(data, &ring); err != nil {
		return nil, fmt.Errorf("%w: coordinates must be a ring or a list of rings", ErrInvalidPolygon)
	}
	return PolygonFromCoordinates([][][]float64{ring})
}

// Coordinates is the inverse of PolygonFromCoordinates.
func Coordinates(poly orb.Polygon) [][][]float64 {
	out := make([][][]float64, len(poly))
	for i, r := range poly {
		out[i] = make([][]float64, len(r))
		for j, p := range r {
			out[i][j] = []float64{p[0], p[1]}
		}
	}
	return out
}

func selfIntersects(r orb.Ring) bool {
	v := dropRepeats(r)
	m := len(v) - 1 // edge count of the closed vertex list
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			a1, a2 := v[i], v[i+1]
			b1, b2 := v[j], v[j+1]
			switch {
			case j == i+1:
				// consecutive edges share a2 == b1; only a fold back along a1-a2 is illegal
				if foldsBack(a1, a2, b2) {
					return true
				}
			case i == 0 && j == m-1:
				// first and closing edge share a1 == b2
				if foldsBack(a2, a1, b1) {
					return true
				}
			default:
				if segmentsIntersect(a1, a2, b1, b2) {
					return true
				}
			}
		}
	}
	return false
}

// foldsBack reports whether next doubles back over the edge prev-shared.
func foldsBack(prev, shared, next orb.Point) bool {
	if cross(prev, shared, next) != 0 {
		return false
	}
	dx1, dy1 := shared[0]-prev[0], shared[1]-prev[1]
	dx2, dy2 := next[0]-shared[0], next[1]-shared[1]
	return dx1*dx2+dy1*dy2 < 0
}

func dropRepeats(r orb.Ring) []orb.Point {
	out := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return (d1 == 0 && within(p1, p3, p4)) ||
		(d2 == 0 && within(p2, p3, p4)) ||
		(d3 == 0 && within(p3, p1, p2)) ||
		(d4 == 0 && within(p4, p1, p2))
}

// within assumes p is collinear with a-b and checks the bounding box.
func within(p, a, b orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}
