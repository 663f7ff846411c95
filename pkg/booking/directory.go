package booking

import "context"

// User is the identity a booking is made for.
type User struct {
	ID          UserID
	Email       string
	DisplayName string
}

// Exchange is the business that publishes hours and accepts bookings.
type Exchange struct {
	ID      ExchangeID
	Name    string
	OwnerID UserID
}

// Directory resolves users and exchanges owned by other subsystems.
type Directory interface {
	FindUser(ctx context.Context, userID UserID) (User, bool, error)
	FindExchange(ctx context.Context, exchangeID ExchangeID) (Exchange, bool, error)
}

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID UserID
	Admin  bool
	system bool
}

// NewActor returns an actor for an authenticated user.
func NewActor(userID UserID, admin bool) Actor {
	return Actor{UserID: userID, Admin: admin}
}

// SystemActor is used by background jobs such as the pending sweep.
func SystemActor() Actor {
	return Actor{system: true}
}

// IsSystem reports whether the actor is a background job.
func (actor Actor) IsSystem() bool {
	return actor.system
}

func (actor Actor) manages(exchange Exchange) bool {
	if actor.system || actor.Admin {
		return true
	}
	return !actor.UserID.IsZero() && actor.UserID == exchange.OwnerID
}

func (actor Actor) owns(booking Booking) bool {
	return !actor.UserID.IsZero() && actor.UserID == booking.UserID
}
