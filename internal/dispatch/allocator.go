package dispatch

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// CrewPolicy decides how many firefighters a call needs.
type CrewPolicy struct {
	// Sizes overrides the crew per incident type. Zero or missing falls back to
	// the station's standard crew, then to Default.
	Sizes   map[IncidentType]int
	Default int
}

// For returns the crew size for an incident handled by st. Always at least one.
func (p CrewPolicy) For(t IncidentType, st Station) int {
	if n := p.Sizes[t]; n > 0 {
		return n
	}
	if st.StandardCrew > 0 {
		return st.StandardCrew
	}
	if p.Default > 0 {
		return p.Default
	}
	return 1
}

// Request describes what a call needs from the ledger.
type Request struct {
	CallID       string
	IncidentType IncidentType
	Latitude     *float64
	Longitude    *float64
}

// Reservation is a station slot plus crew held by one call.
type Reservation struct {
	CallID         string
	StationID      int64
	FirefighterIDs []int64
	DistanceKm     float64
}

// StationView is a station with its current load and the IDs of its available
// firefighters in ascending order.
type StationView struct {
	Station   Station
	Load      int
	Available []int64
}

// Allocator matches a request against a ledger view. It keeps no state.
type Allocator struct {
	Crew CrewPolicy
}

// Select picks the nearest eligible station, breaking ties by lower load and
// then lower station ID. Calls without coordinates treat every station as
// equally near.
func (a Allocator) Select(views []StationView, req Request) (Reservation, bool) {
	type candidate struct {
		view     StationView
		crew     int
		distance float64
	}

	candidates := make([]candidate, 0, len(views))
	for _, v := range views {
		if !v.Station.Active || v.Load >= v.Station.Capacity {
			continue
		}
		crew := a.Crew.For(req.IncidentType, v.Station)
		if len(v.Available) < crew {
			continue
		}
		dist := 0.0
		if req.Latitude != nil && req.Longitude != nil {
			dist = haversineKm(*req.Latitude, *req.Longitude, v.Station.Latitude, v.Station.Longitude)
		}
		candidates = append(candidates, candidate{view: v, crew: crew, distance: dist})
	}
	if len(candidates) == 0 {
		return Reservation{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.distance != cj.distance {
			return ci.distance < cj.distance
		}
		if ci.view.Load != cj.view.Load {
			return ci.view.Load < cj.view.Load
		}
		return ci.view.Station.ID < cj.view.Station.ID
	})

	best := candidates[0]
	return Reservation{
		CallID:         req.CallID,
		StationID:      best.view.Station.ID,
		FirefighterIDs: append([]int64(nil), best.view.Available[:best.crew]...),
		DistanceKm:     best.distance,
	}, true
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
