package catalog

import (
	"fmt"
	"sort"
	"strings"

	"TrafficFeeds/internal/domain"
)

// DefaultBaseURL is the CWWP2 data root.
const DefaultBaseURL = "https://cwwp2.dot.ca.gov/data"

// availability lists which districts publish which feed. Built once, never mutated.
var availability = map[domain.DataType][]domain.District{
	domain.ChainControl: {1, 2, 3, 6, 7, 8, 9, 10, 11},
	domain.CCTV:         {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	domain.MessageSign:  {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	domain.LaneClosure:  {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	domain.RoadWeather:  {2, 3, 6, 8, 9, 10},
	domain.TravelTime:   {3, 8, 11, 12},
}

var published = func() map[domain.DataType]map[domain.District]struct{} {
	index := make(map[domain.DataType]map[domain.District]struct{}, len(availability))
	for t, districts := range availability {
		set := make(map[domain.District]struct{}, len(districts))
		for _, d := range districts {
			set[d] = struct{}{}
		}
		index[t] = set
	}
	return index
}()

// Available reports whether district d publishes feed t.
func Available(t domain.DataType, d domain.District) bool {
	_, ok := published[t][d]
	return ok
}

// Availability returns a copy of the table keyed by type.
func Availability() map[domain.DataType][]domain.District {
	out := make(map[domain.DataType][]domain.District, len(availability))
	for t, districts := range availability {
		out[t] = append([]domain.District(nil), districts...)
	}
	return out
}

// Districts returns every district covered by at least one feed, ascending.
func Districts() []domain.District {
	seen := map[domain.District]struct{}{}
	for _, districts := range availability {
		for _, d := range districts {
			seen[d] = struct{}{}
		}
	}
	out := make([]domain.District, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TypesFor lists the feeds a district publishes, in canonical order.
func TypesFor(d domain.District) []domain.DataType {
	var out []domain.DataType
	for _, t := range domain.DataTypes() {
		if Available(t, d) {
			out = append(out, t)
		}
	}
	return out
}

// Resolver maps (type, district) pairs to feed URLs.
type Resolver struct {
	baseURL string
}

// NewResolver builds a resolver rooted at baseURL; empty means DefaultBaseURL.
func NewResolver(baseURL string) *Resolver {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{baseURL: baseURL}
}

// Resolve returns the endpoint for the pair, or false when the district has no such feed.
func (r *Resolver) Resolve(t domain.DataType, d domain.District) (domain.Endpoint, bool) {
	if !Available(t, d) {
		return domain.Endpoint{}, false
	}
	return domain.Endpoint{
		Type:     t,
		District: d,
		URL:      fmt.Sprintf("%s/d%d/%s/%sStatusD%02d.json", r.baseURL, d, t, t, d),
	}, true
}

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var districtCenters = map[domain.District]Coordinate{
	1:  {40.789621, -124.109611},
	2:  {40.898134, -121.662397},
	3:  {39.157228, -121.612890},
	4:  {37.441512, -121.997705},
	5:  {35.282418, -120.691266},
	6:  {36.904728, -119.809147},
	7:  {33.975959, -118.088380},
	8:  {34.146572, -117.226980},
	9:  {37.7459, -119.5971},
	10: {38.1041, -120.2351},
	11: {32.7157, -117.1611},
	12: {33.7455, -117.8677},
}

// DistrictCenter is where a map should centre when a district is picked.
func DistrictCenter(d domain.District) (Coordinate, bool) {
	c, ok := districtCenters[d]
	return c, ok
}
