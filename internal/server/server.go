// Package server exposes the carpark data layer over HTTP and pushes
// change events to renderers over websockets.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"parkwhere_backend/internal/carpark"
	"parkwhere_backend/internal/geo"
	"parkwhere_backend/internal/interest"
	"parkwhere_backend/internal/spatial"
)

// Server wires the registry, the optional spatial index, the interest
// protocol and the websocket hub behind one router.
type Server struct {
	reg   *carpark.Registry
	index *spatial.Index
	sync  *interest.Sync
	hub   *Hub
}

func New(reg *carpark.Registry, index *spatial.Index, sync *interest.Sync, hub *Hub) *Server {
	return &Server{reg: reg, index: index, sync: sync, hub: hub}
}

// Handler returns the routed handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/api/carparks", s.handleListCarparks).Methods(http.MethodGet)
	r.HandleFunc("/api/carparks/nearby", s.handleNearby).Methods(http.MethodGet)
	r.HandleFunc("/api/carparks/sort", s.handleSort).Methods(http.MethodPost)
	r.HandleFunc("/api/interested", s.handleGetInterested).Methods(http.MethodGet)
	r.HandleFunc("/api/interested", s.handleToggleInterested).Methods(http.MethodPut)
	r.HandleFunc("/api/interested", s.handleClearInterested).Methods(http.MethodDelete)
	r.HandleFunc("/ws/updates", s.hub.HandleWS)

	cors := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.CombinedLoggingHandler(os.Stdout, cors(r))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("parkwhere backend"))
}

func (s *Server) handleListCarparks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.reg.Records())
}

// nearbyItem is the wire form of a nearby result: the facility record plus
// the search distance and a pin colour graded by vacancy.
type nearbyItem struct {
	carpark.NearbyRecord
	Color string `json:"color"`
}

// toNearbyItems snapshots the list into wire form under the registry lock
// before grading colours. The feeds patch the live carparks concurrently,
// so the fields must not be read here directly.
func toNearbyItems(reg *carpark.Registry, list []*carpark.Carpark) []nearbyItem {
	records := reg.SnapshotNearby(list)
	items := make([]nearbyItem, 0, len(records))
	for _, nr := range records {
		items = append(items, nearbyItem{
			NearbyRecord: nr,
			Color:        colorFromVacancy(nr.VacancyPercentage),
		})
	}
	return items
}

// GET /api/carparks/nearby?lng=&lat=&radius=[&source=index]
//
// Runs the search pipeline: proximity, then sort (defaulting to vacancy
// descending on the first search, as the original UI did), then the
// ordered list goes back to the caller. The hub has already pushed the
// nearby-list-update event by then.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	radius, errRad := strconv.ParseFloat(q.Get("radius"), 64)
	if errLng != nil || errLat != nil || errRad != nil {
		http.Error(w, "lng, lat and radius are required numbers", http.StatusBadRequest)
		return
	}
	center := geo.Point{Lat: lat, Lng: lng}

	if q.Get("source") == "index" && s.index != nil {
		if _, err := s.reg.ComputeNearbyFrom(r.Context(), s.index, center, radius); err != nil {
			if errors.Is(err, spatial.ErrQueryExhausted) {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
	} else {
		s.reg.ComputeNearby(center, radius)
	}

	field, order := s.reg.SortMode()
	if field == "" {
		field, order = carpark.SortByVacancy, carpark.SortDesc
	}
	if err := s.reg.Sort(field, order); err != nil {
		log.Printf("server: sort after search: %v", err)
	}
	writeJSON(w, toNearbyItems(s.reg, s.reg.Nearby()))
}

type sortRequest struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// POST /api/carparks/sort with {"field":..,"order":..}; omitting order
// toggles the field the way the sidebar buttons do.
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	var err error
	if req.Order == "" {
		err = s.reg.ToggleSort(carpark.SortField(req.Field))
	} else {
		err = s.reg.Sort(carpark.SortField(req.Field), carpark.SortOrder(req.Order))
	}
	if err != nil {
		// Unknown field: warn and leave the list untouched.
		log.Printf("server: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, toNearbyItems(s.reg, s.reg.Nearby()))
}

func (s *Server) handleGetInterested(w http.ResponseWriter, r *http.Request) {
	c := s.reg.Interested()
	if c == nil {
		writeJSON(w, nil)
		return
	}
	rec := s.reg.SnapshotRecord(c)
	writeJSON(w, &rec)
}

type toggleRequest struct {
	CarParkNo string `json:"car_park_no"`
}

func (s *Server) handleToggleInterested(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := s.sync.Toggle(r.Context(), req.CarParkNo); err != nil {
		writeInterestError(w, err)
		return
	}
	s.handleGetInterested(w, r)
}

func (s *Server) handleClearInterested(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.Clear(r.Context()); err != nil {
		writeInterestError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeInterestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interest.ErrMutationPending):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, carpark.ErrUnknownID), errors.Is(err, interest.ErrNotInterested):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: error encoding response: %v", err)
	}
}

// colorFromVacancy grades a pin colour from green (plenty of vacancy) to
// red (full).
func colorFromVacancy(percentage float64) string {
	switch {
	case percentage >= 75:
		return "#00FF00"
	case percentage >= 50:
		return "#7FFF00"
	case percentage >= 25:
		return "#FFFF00"
	case percentage > 0:
		return "#FF7F00"
	default:
		return "#FF0000"
	}
}
