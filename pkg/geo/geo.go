// Package geo holds the containment math used to match location reports
// against geofence polygons. Positions follow GeoJSON order: [lng, lat].
//
// Longitude wrap-around is not handled; geofences are assumed to be small
// regions that do not cross the antimeridian.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrInvalidPoint   = errors.New("invalid point")
	ErrInvalidRing    = errors.New("invalid ring")
	ErrInvalidPolygon = errors.New("invalid polygon")
)

// boundaryEpsilon bounds the cross product used for on-edge detection.
const boundaryEpsilon = 1e-12

func NewPoint(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

func ValidatePoint(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: lat %v out of range [-90, 90]", ErrInvalidPoint, lat)
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: lng %v out of range [-180, 180]", ErrInvalidPoint, lng)
	}
	return nil
}

// Contains reports whether p lies inside poly. The first ring is the outer
// boundary and the remaining rings are holes. A point on any ring edge or
// vertex counts as contained. Degenerate outer rings contain nothing.
func Contains(p orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 || isDegenerate(poly[0]) {
		return false
	}

	if onBoundary(p, poly[0]) {
		return true
	}
	if !insideRing(p, poly[0]) {
		return false
	}

	for _, hole := range poly[1:] {
		if isDegenerate(hole) {
			continue
		}
		if onBoundary(p, hole) {
			return true
		}
		if insideRing(p, hole) {
			return false
		}
	}
	return true
}

// insideRing is the even-odd rule; it ignores whether the ring is closed
// because a closing duplicate only adds a horizontal zero-length edge.
func insideRing(p orb.Point, r orb.Ring) bool {
	in := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := r[i][0], r[i][1]
		xj, yj := r[j][0], r[j][1]
		if (yi > p[1]) != (yj > p[1]) {
			xCross := (xj-xi)*(p[1]-yi)/(yj-yi) + xi
			if p[0] < xCross {
				in = !in
			}
		}
	}
	return in
}

func onBoundary(p orb.Point, r orb.Ring) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		a := r[i]
		b := r[(i+1)%n]
		if onSegment(p, a, b) {
			return true
		}
	}
	return false
}

func onSegment(p, a, b orb.Point) bool {
	if math.Abs(cross(a, b, p)) > boundaryEpsilon {
		return false
	}
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

// cross is the z component of (b-a) x (p-a).
func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func isDegenerate(r orb.Ring) bool {
	return distinctVertices(r) < 3 || signedArea(r) == 0
}

func distinctVertices(r orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// signedArea uses the shoelace formula; the sign gives the winding order.
func signedArea(r orb.Ring) float64 {
	var sum float64
	n := len(r)
	for i := 0; i < n; i++ {
		a := r[i]
		b := r[(i+1)%n]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return sum / 2
}
