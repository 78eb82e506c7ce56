package carpark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"parkwhere_backend/internal/geo"
)

// Record is the wire form of a facility, as produced by the backend's
// snapshot endpoint and carried in interest-mutation responses. Coordinates
// are a [lng, lat] pair.
type Record struct {
	Coordinates           []float64 `json:"coordinates"`
	CarParkNo             string    `json:"car_park_no"`
	Address               string    `json:"address"`
	TotalLots             int       `json:"total_lots"`
	LotsAvailable         int       `json:"lots_available"`
	VacancyPercentage     float64   `json:"vacancy_percentage"`
	CarParkType           string    `json:"car_park_type"`
	TypeOfParkingSystem   string    `json:"type_of_parking_system"`
	FreeParking           bool      `json:"free_parking"`
	NoOfInterestedDrivers int       `json:"no_of_interested_drivers"`
}

// DecodeRecords reads a JSON array of facility records. The wire boundary
// is the one place where unknown attributes are still checked: a record
// carrying a field this layer does not know rejects the whole payload.
func DecodeRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode facility records: %w", err)
	}
	return records, nil
}

// DecodeRecordBytes is DecodeRecords over an in-memory payload.
func DecodeRecordBytes(b []byte) ([]Record, error) {
	return DecodeRecords(bytes.NewReader(b))
}

// Point unpacks the [lng, lat] coordinate pair; a malformed pair yields
// the zero point.
func (rec Record) Point() geo.Point {
	var p geo.Point
	if len(rec.Coordinates) == 2 {
		p = geo.Point{Lng: rec.Coordinates[0], Lat: rec.Coordinates[1]}
	}
	return p
}

// Patch converts the record into a partial update for the carpark with the
// same number.
func (rec Record) Patch() Patch {
	pt := rec.Point()
	return Patch{
		Coordinates:           &pt,
		Address:               &rec.Address,
		CarParkType:           &rec.CarParkType,
		TypeOfParkingSystem:   &rec.TypeOfParkingSystem,
		FreeParking:           &rec.FreeParking,
		TotalLots:             &rec.TotalLots,
		LotsAvailable:         &rec.LotsAvailable,
		NoOfInterestedDrivers: &rec.NoOfInterestedDrivers,
		VacancyPercentage:     &rec.VacancyPercentage,
	}
}

func (rec Record) newCarpark() *Carpark {
	return &Carpark{
		CarParkNo:             rec.CarParkNo,
		Coordinates:           rec.Point(),
		Address:               rec.Address,
		CarParkType:           rec.CarParkType,
		TypeOfParkingSystem:   rec.TypeOfParkingSystem,
		FreeParking:           rec.FreeParking,
		TotalLots:             rec.TotalLots,
		LotsAvailable:         rec.LotsAvailable,
		NoOfInterestedDrivers: rec.NoOfInterestedDrivers,
		VacancyPercentage:     rec.VacancyPercentage,
	}
}

// NearbyRecord is a Record annotated with the distance from the last
// search.
type NearbyRecord struct {
	Record
	DistanceInKM *float64 `json:"distance_in_km,omitempty"`
}

// RecordOf is the inverse of newCarpark, used when pushing a carpark back
// out over the wire. Callers outside the registry lock must use
// Registry.SnapshotRecord instead: the feeds patch live carparks under
// that lock.
func RecordOf(c *Carpark) Record {
	return Record{
		Coordinates:           []float64{c.Coordinates.Lng, c.Coordinates.Lat},
		CarParkNo:             c.CarParkNo,
		Address:               c.Address,
		TotalLots:             c.TotalLots,
		LotsAvailable:         c.LotsAvailable,
		VacancyPercentage:     c.VacancyPercentage,
		CarParkType:           c.CarParkType,
		TypeOfParkingSystem:   c.TypeOfParkingSystem,
		FreeParking:           c.FreeParking,
		NoOfInterestedDrivers: c.NoOfInterestedDrivers,
	}
}
