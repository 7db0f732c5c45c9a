package store

import (
	"fmt"

	"fire/command/internal/dispatch"
)

// DemoRoster mirrors the roster seeded by the demo migration so the memory
// driver starts with something to dispatch.
func DemoRoster() ([]dispatch.Station, []dispatch.Firefighter) {
	stations := []dispatch.Station{
		{ID: 1, Code: "ST-01", Name: "Central Station", Address: "1 Main Street", Type: dispatch.StationMain, Latitude: 37.5665, Longitude: 126.9780, Capacity: 3, StandardCrew: 4, Active: true},
		{ID: 2, Code: "ST-02", Name: "Riverside Branch", Address: "42 River Road", Type: dispatch.StationBranch, Latitude: 37.5172, Longitude: 127.0473, Capacity: 2, StandardCrew: 3, Active: true},
		{ID: 3, Code: "ST-03", Name: "Hillside Substation", Address: "7 Hill Lane", Type: dispatch.StationSub, Latitude: 37.5894, Longitude: 126.9206, Capacity: 1, StandardCrew: 2, Active: true},
	}

	var firefighters []dispatch.Firefighter
	id := int64(1)
	for _, st := range stations {
		for n := 1; n <= 6; n++ {
			rank := "FIREFIGHTER"
			if n == 1 {
				rank = "CAPTAIN"
			}
			firefighters = append(firefighters, dispatch.Firefighter{
				ID:           id,
				Name:         fmt.Sprintf("Firefighter %s-%d", st.Code, n),
				Rank:         rank,
				StationID:    st.ID,
				Availability: dispatch.Available,
			})
			id++
		}
	}
	return stations, firefighters
}
