package booking

import (
	"context"
	"errors"
	"time"
)

// ErrNotCancellable rejects cancelling a reservation that is not active.
var ErrNotCancellable = errors.New("booking: reservation not cancellable")

// ErrInvalidInput flags malformed booking payloads.
var ErrInvalidInput = errors.New("booking: invalid input")

// Service handles the reservation lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Reserve books a seat for the user on the route, falling back to the
// waitlist when the route is full.
func (s *Service) Reserve(ctx context.Context, userID, routeID string) (Outcome, error) {
	if userID == "" || routeID == "" {
		return Outcome{}, errors.Join(ErrInvalidInput, errors.New("usuario and ruta required"))
	}
	return s.repo.Reserve(ctx, userID, routeID, s.now().UTC())
}

// Cancel voids a reservation and promotes the waitlist head, atomically.
func (s *Service) Cancel(ctx context.Context, reservationID, reason string) (Reservation, *WaitlistEntry, error) {
	return s.repo.Cancel(ctx, reservationID, reason, s.now().UTC())
}

// Complete closes out a trip.
func (s *Service) Complete(ctx context.Context, reservationID string) (Reservation, error) {
	return s.repo.Complete(ctx, reservationID, s.now().UTC())
}

// ListReservations returns reservations filtered by user and route.
func (s *Service) ListReservations(ctx context.Context, userID, routeID string) ([]Reservation, error) {
	list, err := s.repo.ListReservations(ctx, userID, routeID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Reservation{}
	}
	return list, nil
}

// GetReservation fetches one reservation.
func (s *Service) GetReservation(ctx context.Context, id string) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ListWaitlist returns the queue for a route in order.
func (s *Service) ListWaitlist(ctx context.Context, routeID string) ([]WaitlistEntry, error) {
	list, err := s.repo.ListWaitlist(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []WaitlistEntry{}
	}
	return list, nil
}

// LeaveWaitlist drops a waiting entry from the queue.
func (s *Service) LeaveWaitlist(ctx context.Context, entryID string) (WaitlistEntry, error) {
	return s.repo.LeaveWaitlist(ctx, entryID, s.now().UTC())
}
