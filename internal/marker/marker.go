package marker

import (
	"strconv"

	"TrafficFeeds/internal/domain"
)

const (
	noChainControls = "No chain controls are in effect at this time."
	blankSign       = "Blank"
)

// Bounds is a latitude/longitude box, edges inclusive.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether the point lies inside the box.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Filter narrows projection to one district (0 for any) and optionally a viewport.
type Filter struct {
	District domain.District
	Bounds   *Bounds
}

// Marker is one map pin derived from a record.
type Marker struct {
	ID        string          `json:"id"`
	Type      domain.DataType `json:"type"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	District  domain.District `json:"district"`
	Popup     Popup           `json:"popup"`
}

// Project turns the records of result into markers, walking types in canonical order.
// The first record at a coordinate claims it, even when that record is not shown.
func Project(result domain.AggregateResult, filter Filter) []Marker {
	markers := []Marker{}
	claimed := map[string]struct{}{}

	for _, t := range domain.DataTypes() {
		for _, record := range result.Bucket(t) {
			if record.Payload == nil {
				continue
			}
			pos, ok := record.Payload.Position()
			if !ok {
				continue
			}
			if filter.District != 0 && pos.District != filter.District {
				continue
			}
			if filter.Bounds != nil && !filter.Bounds.Contains(pos.Latitude, pos.Longitude) {
				continue
			}

			id := coordinateKey(pos)
			if _, seen := claimed[id]; seen {
				continue
			}
			claimed[id] = struct{}{}

			if hidden(record.Payload) {
				continue
			}
			markers = append(markers, Marker{
				ID:        id,
				Type:      t,
				Latitude:  pos.Latitude,
				Longitude: pos.Longitude,
				District:  pos.District,
				Popup:     PopupFor(record.Payload),
			})
		}
	}
	return markers
}

func coordinateKey(pos domain.Position) string {
	return strconv.FormatFloat(pos.Latitude, 'f', -1, 64) + "-" + strconv.FormatFloat(pos.Longitude, 'f', -1, 64)
}

func hidden(p domain.Payload) bool {
	switch v := p.(type) {
	case domain.ChainControlStatus:
		return v.StatusData.StatusDescription.String() == noChainControls
	case domain.MessageSignStatus:
		return v.Message.Display.String() == blankSign
	default:
		return false
	}
}
