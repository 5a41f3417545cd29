// Package gps stores telemetry positions, tracking devices and deviation
// events reported along routes.
package gps

import "time"

// Device is a tracker unit identified by IMEI.
type Device struct {
	ID             string    `json:"id"`
	IMEI           string    `json:"imei"`
	Name           string    `json:"nombre"`
	Active         bool      `json:"activo"`
	CreatedAt      time.Time `json:"creado_en"`
	LastPositionID *string   `json:"ultima_posicion"`
}

// Position is a single GPS fix with optional telemetry.
type Position struct {
	ID         string    `json:"id"`
	RouteID    *string   `json:"ruta"`
	UserID     *string   `json:"usuario"`
	DeviceID   *string   `json:"device"`
	Longitude  float64   `json:"longitud"`
	Latitude   float64   `json:"latitud"`
	Speed      *float64  `json:"velocidad"`
	Heading    *float64  `json:"heading"`
	Altitude   *float64  `json:"altitude"`
	Accuracy   *float64  `json:"accuracy"`
	Battery    *float64  `json:"battery"`
	RecordedAt time.Time `json:"fecha_hora"`
}

// NearbyPosition is a position annotated with distance from a search center.
type NearbyPosition struct {
	Position
	DistanceM float64 `json:"distancia_m"`
}

// DeviationEvent flags an incident tied to a position or route.
type DeviationEvent struct {
	ID          string    `json:"id"`
	PositionID  *string   `json:"posicion"`
	RouteID     *string   `json:"ruta"`
	OccurredAt  time.Time `json:"fecha_hora"`
	Kind        string    `json:"tipo_desvio"`
	State       string    `json:"estado"`
	Description string    `json:"descripcion"`
}

// RadiusQuery bounds a WithinRadius search.
type RadiusQuery struct {
	Longitude float64
	Latitude  float64
	Meters    float64
	Since     *time.Time
	Until     *time.Time
	Limit     int
}
