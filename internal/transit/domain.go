// Package transit manages routes, buses and the stops along each route.
package transit

import "time"

// Route is a transit line with separate active and waiting capacity.
type Route struct {
	ID              string `json:"id"`
	Name            string `json:"nombre_ruta"`
	ActiveCapacity  *int   `json:"capacidad_activa"`
	WaitingCapacity *int   `json:"capacidad_espera"`
	Buses           []Bus  `json:"buses"`
}

// Bus is a vehicle that can be assigned to routes.
type Bus struct {
	ID       string `json:"id"`
	Plate    string `json:"placa"`
	Brand    string `json:"marca"`
	Model    string `json:"modelo"`
	Capacity *int   `json:"capacidad"`
	State    string `json:"estado_bus"`
}

// Stop is a boarding point ordered along a route.
type Stop struct {
	ID        string    `json:"id"`
	RouteID   string    `json:"ruta"`
	Name      string    `json:"nombre"`
	Address   string    `json:"direccion"`
	Latitude  float64   `json:"coordenada_lat"`
	Longitude float64   `json:"coordenada_lng"`
	Order     int       `json:"orden"`
	Active    bool      `json:"activa"`
	CreatedAt time.Time `json:"fecha_creacion"`
	UpdatedAt time.Time `json:"fecha_actualizacion"`
}

// NearbyStop is a stop annotated with its distance from a search center.
type NearbyStop struct {
	Stop
	DistanceM float64 `json:"distancia_m"`
}
