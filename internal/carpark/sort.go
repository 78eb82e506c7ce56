package carpark

import (
	"errors"
	"fmt"
	"sort"
)

// SortField selects which numeric attribute orders the nearby list.
type SortField string

// SortOrder selects the direction.
type SortOrder string

const (
	SortByDistance SortField = "distance"
	SortByVacancy  SortField = "vacancy"

	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ErrUnknownSortField is returned for a field outside distance/vacancy.
// Callers should leave the list as-is and surface a warning rather than
// treat it as fatal.
var ErrUnknownSortField = errors.New("unknown sort field")

// SortCarparks orders list in place by field and direction. The sort is
// stable: carparks with equal keys keep their relative order, so repeating
// the same sort is idempotent.
func SortCarparks(list []*Carpark, field SortField, order SortOrder) error {
	var key func(*Carpark) float64
	switch field {
	case SortByDistance:
		key = func(c *Carpark) float64 {
			if c.DistanceKM == nil {
				return 0
			}
			return *c.DistanceKM
		}
	case SortByVacancy:
		key = func(c *Carpark) float64 { return c.VacancyPercentage }
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSortField, field)
	}

	if order == SortAsc {
		sort.SliceStable(list, func(i, j int) bool { return key(list[i]) < key(list[j]) })
	} else {
		sort.SliceStable(list, func(i, j int) bool { return key(list[i]) > key(list[j]) })
	}
	return nil
}
