package domain

import "time"

// AliasReservationStatus represents the state of an alias reservation.
type AliasReservationStatus string

const (
	AliasReserved  AliasReservationStatus = "RESERVED"
	AliasConfirmed AliasReservationStatus = "CONFIRMED"
)

// AliasReservationTTL is how long a RESERVED alias is held before it becomes
// eligible for removal.
const AliasReservationTTL = 30 * time.Minute

// AliasReservation claims a tenant alias before the tenant exists.
type AliasReservation struct {
	Alias     string
	Status    AliasReservationStatus
	CreatedAt time.Time
	// ExpiresAt is nil once the reservation is confirmed.
	ExpiresAt *time.Time
}

// IsExpired returns true if the reservation is still RESERVED and its TTL has
// elapsed at the given time.
func (r *AliasReservation) IsExpired(now time.Time) bool {
	if r.Status != AliasReserved || r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}
