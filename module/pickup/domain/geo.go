package domain

import (
	"encoding/json"
	"time"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SchoolZone is the permitted pickup perimeter around a school. On the wire it
// uses the backend's flat {latitude, longitude, radius} shape.
type SchoolZone struct {
	Center       GeoPoint
	RadiusMeters float64
}

type schoolZoneJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

func (z SchoolZone) MarshalJSON() ([]byte, error) {
	return json.Marshal(schoolZoneJSON{
		Latitude:  z.Center.Latitude,
		Longitude: z.Center.Longitude,
		Radius:    z.RadiusMeters,
	})
}

func (z *SchoolZone) UnmarshalJSON(b []byte) error {
	var raw schoolZoneJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	z.Center = GeoPoint{Latitude: raw.Latitude, Longitude: raw.Longitude}
	z.RadiusMeters = raw.Radius
	return nil
}

type ZoneValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type DeviceLocation struct {
	ParentID   string    `json:"parent_id"`
	Point      GeoPoint  `json:"location"`
	ReportedAt time.Time `json:"reported_at"`
}
