// Package geo provides great-circle distance math and radius filtering for
// the "nearby reports" read path.
package geo

import (
	"fmt"
	"math"

	syncErrors "github.com/c0deZ3R0/incident-sync/errors"
	"github.com/c0deZ3R0/incident-sync/incident"
)

const earthRadiusMeters = 6371000.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the haversine great-circle distance between two
// coordinates in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// FilterWithinRadius returns the subset of candidates whose distance to
// center is at most radiusKm kilometers, inclusive at the boundary. Each
// returned report is annotated with its distance in meters and a rounded
// kilometer label for display. Coordinates are validated before any distance
// is computed; an invalid center or radius fails with an Invalid error.
func FilterWithinRadius(center Point, radiusKm float64, candidates []incident.Report) ([]incident.Report, error) {
	if err := incident.ValidateCoordinates(center.Latitude, center.Longitude); err != nil {
		return nil, err
	}
	if radiusKm < 0 {
		return nil, invalidRadius(radiusKm)
	}

	limit := radiusKm * 1000
	within := make([]incident.Report, 0, len(candidates))
	for _, r := range candidates {
		if err := incident.ValidateCoordinates(r.Latitude, r.Longitude); err != nil {
			return nil, err
		}
		d := Distance(center.Latitude, center.Longitude, r.Latitude, r.Longitude)
		if d <= limit {
			r.DistanceMeters = d
			r.DistanceLabel = Label(d)
			within = append(within, r)
		}
	}
	return within, nil
}

// Label formats a distance in meters as a rounded kilometer string, e.g.
// "0.8 km" or "12.3 km".
func Label(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

func invalidRadius(radiusKm float64) error {
	return syncErrors.E(
		syncErrors.Op("geo.FilterWithinRadius"),
		syncErrors.Invalid,
		fmt.Errorf("radius %v km must be non-negative", radiusKm),
	)
}
