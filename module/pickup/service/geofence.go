package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

const (
	earthRadiusMeters = 6371000

	minZoneRadius = 100
	maxZoneRadius = 5000
)

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b domain.GeoPoint) float64 {
	return haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// IsWithinZone reports whether point lies inside zone, boundary included.
// A missing or malformed point never authorizes a pickup.
func IsWithinZone(point *domain.GeoPoint, zone domain.SchoolZone) bool {
	if point == nil || !validPoint(*point) {
		return false
	}
	return DistanceMeters(*point, zone.Center) <= zone.RadiusMeters
}

func ValidateZone(zone domain.SchoolZone) domain.ZoneValidation {
	errs := []string{}

	if !inRange(zone.Center.Latitude, -90, 90) {
		errs = append(errs, "Latitude must be between -90 and 90 degrees")
	}
	if !inRange(zone.Center.Longitude, -180, 180) {
		errs = append(errs, "Longitude must be between -180 and 180 degrees")
	}
	if !inRange(zone.RadiusMeters, minZoneRadius, maxZoneRadius) {
		errs = append(errs, fmt.Sprintf("Radius must be between %d and %d meters", minZoneRadius, maxZoneRadius))
	}

	return domain.ZoneValidation{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

type GeofenceService struct {
	zone domain.SchoolZone
}

func NewGeofenceService(zone domain.SchoolZone) (*GeofenceService, error) {
	if v := ValidateZone(zone); !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidZone, strings.Join(v.Errors, "; "))
	}
	return &GeofenceService{zone: zone}, nil
}

func (s *GeofenceService) Zone() domain.SchoolZone {
	return s.zone
}

// Evaluate returns whether point is inside the zone and, for a usable point,
// its distance to the zone center. Distance is -1 when point is unusable.
func (s *GeofenceService) Evaluate(point *domain.GeoPoint) (bool, float64) {
	if point == nil || !validPoint(*point) {
		return false, -1
	}
	return IsWithinZone(point, s.zone), DistanceMeters(*point, s.zone.Center)
}

// Authorize fails closed: ErrLocationUnknown for a missing or malformed point,
// ErrOutsideZone when the point is beyond the radius.
func (s *GeofenceService) Authorize(point *domain.GeoPoint) (float64, error) {
	within, dist := s.Evaluate(point)
	if dist < 0 {
		return 0, ErrLocationUnknown
	}
	if !within {
		return dist, fmt.Errorf("%w: %.0fm from school, limit %.0fm", ErrOutsideZone, dist, s.zone.RadiusMeters)
	}
	return dist, nil
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func validPoint(p domain.GeoPoint) bool {
	return inRange(p.Latitude, -90, 90) && inRange(p.Longitude, -180, 180)
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
