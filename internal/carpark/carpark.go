// Package carpark is the in-memory carpark data layer: the facility record,
// the registry that owns every record, and the sort engine over nearby
// results.
package carpark

import (
	"parkwhere_backend/internal/event"
	"parkwhere_backend/internal/geo"
)

// Carpark is one parking facility. Instances are created once when the
// registry is seeded and are mutated in place through the patch path, so a
// subscriber holding a *Carpark keeps seeing updates for the whole session.
//
// Carpark embeds event.Subject: an open detail popup attaches to the
// carpark it displays and receives event.CarparkUpdate whenever an applied
// patch actually changed something.
type Carpark struct {
	event.Subject `json:"-"`

	// CarParkNo is the facility number, immutable and unique in the registry.
	CarParkNo             string    `json:"car_park_no"`
	Coordinates           geo.Point `json:"-"`
	Address               string    `json:"address"`
	CarParkType           string    `json:"car_park_type"`
	TypeOfParkingSystem   string    `json:"type_of_parking_system"`
	FreeParking           bool      `json:"free_parking"`
	TotalLots             int       `json:"total_lots"`
	LotsAvailable         int       `json:"lots_available"`
	NoOfInterestedDrivers int       `json:"no_of_interested_drivers"`
	// VacancyPercentage comes from upstream and is treated as an opaque
	// sortable number, never recomputed here.
	VacancyPercentage float64 `json:"vacancy_percentage"`

	// DistanceKM is transient: set by the proximity search, meaningful only
	// while the carpark is part of the current nearby list, nil otherwise.
	DistanceKM *float64 `json:"distance_in_km,omitempty"`
}

// Patch is a partial update for one carpark. Nil fields are left untouched.
// The immutable identity (CarParkNo) and the transient DistanceKM are
// deliberately not patchable.
type Patch struct {
	Coordinates           *geo.Point
	Address               *string
	CarParkType           *string
	TypeOfParkingSystem   *string
	FreeParking           *bool
	TotalLots             *int
	LotsAvailable         *int
	NoOfInterestedDrivers *int
	VacancyPercentage     *float64
}

// Update applies p and, when at least one field actually changed, notifies
// the carpark's subscribers with event.CarparkUpdate. Applying the same
// patch twice notifies at most once. Returns whether anything changed.
func (c *Carpark) Update(p Patch) bool {
	if !c.apply(p) {
		return false
	}
	c.Notify(c, event.CarparkUpdate)
	return true
}

// apply mutates without notifying. The registry uses it so notifications
// can be delivered after its lock is released.
func (c *Carpark) apply(p Patch) bool {
	changed := false
	if p.Coordinates != nil && *p.Coordinates != c.Coordinates {
		c.Coordinates = *p.Coordinates
		changed = true
	}
	if p.Address != nil && *p.Address != c.Address {
		c.Address = *p.Address
		changed = true
	}
	if p.CarParkType != nil && *p.CarParkType != c.CarParkType {
		c.CarParkType = *p.CarParkType
		changed = true
	}
	if p.TypeOfParkingSystem != nil && *p.TypeOfParkingSystem != c.TypeOfParkingSystem {
		c.TypeOfParkingSystem = *p.TypeOfParkingSystem
		changed = true
	}
	if p.FreeParking != nil && *p.FreeParking != c.FreeParking {
		c.FreeParking = *p.FreeParking
		changed = true
	}
	if p.TotalLots != nil && *p.TotalLots != c.TotalLots {
		c.TotalLots = *p.TotalLots
		changed = true
	}
	if p.LotsAvailable != nil && *p.LotsAvailable != c.LotsAvailable {
		c.LotsAvailable = *p.LotsAvailable
		changed = true
	}
	if p.NoOfInterestedDrivers != nil && *p.NoOfInterestedDrivers != c.NoOfInterestedDrivers {
		c.NoOfInterestedDrivers = *p.NoOfInterestedDrivers
		changed = true
	}
	if p.VacancyPercentage != nil && *p.VacancyPercentage != c.VacancyPercentage {
		c.VacancyPercentage = *p.VacancyPercentage
		changed = true
	}
	return changed
}
