// Package booking manages seat reservations and the per-route waitlist.
package booking

import "time"

// Reservation states.
const (
	StateReserved  = "RESERVADO"
	StateCancelled = "CANCELADO"
	StateCompleted = "COMPLETADO"
)

// Waitlist states.
const (
	WaitStateWaiting  = "EN_ESPERA"
	WaitStatePromoted = "PASO_A_RESERVA"
	WaitStateCancel   = "CANCELADO"
)

// Reservation is a confirmed seat on a route, unique per (user, route).
type Reservation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"usuario"`
	RouteID      string    `json:"ruta"`
	ReservedAt   time.Time `json:"fecha_reserva"`
	UpdatedAt    time.Time `json:"updated_at"`
	State        string    `json:"estado"`
	CancelReason string    `json:"motivo_cancelacion"`
}

// WaitlistEntry is a queued request for a seat, ordered by position.
type WaitlistEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"usuario"`
	RouteID    string    `json:"ruta"`
	Position   int       `json:"posicion"`
	EnrolledAt time.Time `json:"fecha_inscripcion"`
	UpdatedAt  time.Time `json:"updated_at"`
	State      string    `json:"estado"`
}

// Outcome reports where a reserve request landed: a seat or the waitlist.
type Outcome struct {
	Reservation *Reservation   `json:"reserva,omitempty"`
	Waitlist    *WaitlistEntry `json:"lista_espera,omitempty"`
}
