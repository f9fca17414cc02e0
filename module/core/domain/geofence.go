package domain

type Geofence struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_meters"`
	Armed        bool       `json:"armed"`
}

// Destination is one stop of a trip as supplied by the trip data layer.
// A zero RadiusMeters means the trip-wide radius applies.
type Destination struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Coordinate   Coordinate `json:"coordinate"`
	RadiusMeters float64    `json:"radius_meters,omitempty"`
}

func (d Destination) EffectiveRadius(tripRadius float64) float64 {
	if d.RadiusMeters != 0 {
		return d.RadiusMeters
	}
	return tripRadius
}
