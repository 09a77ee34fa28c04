package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Text is a feed scalar. CWWP2 publishes almost everything as strings, but numbers,
// booleans and nulls show up often enough that decoding must not fail on them.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case data[0] == '{', data[0] == '[':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string {
	return string(t)
}

// Float parses the value as a decimal number.
func (t Text) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int parses the value as a base-10 integer.
func (t Text) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(t)))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Timestamp is the recordTimestamp block shared by all feeds.
type Timestamp struct {
	Date  Text `json:"recordDate"`
	Time  Text `json:"recordTime"`
	Epoch Text `json:"recordEpoch"`
}

// Location is the point location used by cc, cctv, cms and rwis records.
type Location struct {
	District       Text `json:"district"`
	LocationName   Text `json:"locationName"`
	NearbyPlace    Text `json:"nearbyPlace"`
	Longitude      Text `json:"longitude"`
	Latitude       Text `json:"latitude"`
	Elevation      Text `json:"elevation"`
	Direction      Text `json:"direction"`
	County         Text `json:"county"`
	Route          Text `json:"route"`
	RouteSuffix    Text `json:"routeSuffix"`
	PostmilePrefix Text `json:"postmilePrefix"`
	Postmile       Text `json:"postmile"`
	Alignment      Text `json:"alignment"`
	Milepost       Text `json:"milepost"`
}

// SegmentLocation is the begin/end location used by lcs and tt records.
type SegmentLocation struct {
	TravelFlowDirection Text          `json:"travelFlowDirection"`
	Begin               BeginLocation `json:"begin"`
	End                 EndLocation   `json:"end"`
}

type BeginLocation struct {
	District            Text `json:"beginDistrict"`
	LocationName        Text `json:"beginLocationName"`
	FreeFormDescription Text `json:"beginFreeFormDescription"`
	NearbyPlace         Text `json:"beginNearbyPlace"`
	Longitude           Text `json:"beginLongitude"`
	Latitude            Text `json:"beginLatitude"`
	Elevation           Text `json:"beginElevation"`
	Direction           Text `json:"beginDirection"`
	County              Text `json:"beginCounty"`
	Route               Text `json:"beginRoute"`
	RouteSuffix         Text `json:"beginRouteSuffix"`
	PostmilePrefix      Text `json:"beginPostmilePrefix"`
	Postmile            Text `json:"beginPostmile"`
	Alignment           Text `json:"beginAlignment"`
	Milepost            Text `json:"beginMilepost"`
}

type EndLocation struct {
	District            Text `json:"endDistrict"`
	LocationName        Text `json:"endLocationName"`
	FreeFormDescription Text `json:"endFreeFormDescription"`
	NearbyPlace         Text `json:"endNearbyPlace"`
	Longitude           Text `json:"endLongitude"`
	Latitude            Text `json:"endLatitude"`
	Elevation           Text `json:"endElevation"`
	Direction           Text `json:"endDirection"`
	County              Text `json:"endCounty"`
	Route               Text `json:"endRoute"`
	RouteSuffix         Text `json:"endRouteSuffix"`
	PostmilePrefix      Text `json:"endPostmilePrefix"`
	Postmile            Text `json:"endPostmile"`
	Alignment           Text `json:"endAlignment"`
	Milepost            Text `json:"endMilepost"`
}

// Position is a parsed map coordinate with the district the feed reported for it.
type Position struct {
	Latitude  float64
	Longitude float64
	District  District
}

func pointPosition(lat, lon, district Text) (Position, bool) {
	la, okLat := lat.Float()
	lo, okLon := lon.Float()
	if !okLat || !okLon || !inRange(la, 90) || !inRange(lo, 180) {
		return Position{}, false
	}
	d, _ := district.Int()
	return Position{Latitude: la, Longitude: lo, District: District(d)}, true
}

// inRange rejects NaN and infinities along with values beyond ±limit.
func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// Payload is the typed view of one feed element. The set of implementations is closed:
// one per DataType, so consumers switch exhaustively on the concrete type.
type Payload interface {
	DataType() DataType
	RecordIndex() Text
	// Position reports where to place the record on a map, if the feed gave usable coordinates.
	Position() (Position, bool)
	sealed()
}

// ChainControlStatus is a cc record.
type ChainControlStatus struct {
	Index           Text      `json:"index"`
	RecordTimestamp Timestamp `json:"recordTimestamp"`
	Location        Location  `json:"location"`
	InService       Text      `json:"inService"`
	StatusData      struct {
		StatusTimestamp struct {
			Date Text `json:"statusDate"`
			Time Text `json:"statusTime"`
		} `json:"statusTimestamp"`
		Status            Text `json:"status"`
		StatusDescription Text `json:"statusDescription"`
	} `json:"statusData"`
}

// Camera is a cctv record.
type Camera struct {
	Index           Text      `json:"index"`
	RecordTimestamp Timestamp `json:"recordTimestamp"`
	Location        Location  `json:"location"`
	InService       Text      `json:"inService"`
	ImageData       struct {
		ImageDescription  Text `json:"imageDescription"`
		StreamingVideoURL Text `json:"streamingVideoURL"`
		Static            struct {
			CurrentImageUpdateFrequency   Text `json:"currentImageUpdateFrequency"`
			CurrentImageURL               Text `json:"currentImageURL"`
			ReferenceImageUpdateFrequency Text `json:"referenceImageUpdateFrequency"`
			ReferenceImage1UpdateAgoURL   Text `json:"referenceImage1UpdateAgoURL"`
		} `json:"static"`
	} `json:"imageData"`
}

// SignPhase is one page of a changeable message sign.
type SignPhase struct {
	Font  Text
	Line1 Text
	Line2 Text
	Line3 Text
}

// MessageSignStatus is a cms record.
type MessageSignStatus struct {
	Index           Text      `json:"index"`
	RecordTimestamp Timestamp `json:"recordTimestamp"`
	Location        Location  `json:"location"`
	InService       Text      `json:"inService"`
	Message         struct {
		MessageTimestamp struct {
			Date Text `json:"messageDate"`
			Time Text `json:"messageTime"`
		} `json:"messageTimestamp"`
		Display     Text `json:"display"`
		DisplayTime Text `json:"displayTime"`
		Phase1      struct {
			Font  Text `json:"phase1Font"`
			Line1 Text `json:"phase1Line1"`
			Line2 Text `json:"phase1Line2"`
			Line3 Text `json:"phase1Line3"`
		} `json:"phase1"`
		Phase2 struct {
			Font  Text `json:"phase2Font"`
			Line1 Text `json:"phase2Line1"`
			Line2 Text `json:"phase2Line2"`
			Line3 Text `json:"phase2Line3"`
		} `json:"phase2"`
	} `json:"message"`
}

// Phases returns both sign pages with the field prefixes stripped.
func (m MessageSignStatus) Phases() [2]SignPhase {
	p1, p2 := m.Message.Phase1, m.Message.Phase2
	return [2]SignPhase{
		{Font: p1.Font, Line1: p1.Line1, Line2: p1.Line2, Line3: p1.Line3},
		{Font: p2.Font, Line1: p2.Line1, Line2: p2.Line2, Line3: p2.Line3},
	}
}

// LaneClosureStatus is an lcs record.
type LaneClosureStatus struct {
	Index           Text            `json:"index"`
	RecordTimestamp Timestamp       `json:"recordTimestamp"`
	Location        SegmentLocation `json:"location"`
	Closure         struct {
		ClosureID        Text `json:"closureID"`
		LogNumber        Text `json:"logNumber"`
		ClosureTimestamp struct {
			RequestDate   Text `json:"closureRequestDate"`
			RequestTime   Text `json:"closureRequestTime"`
			StartDate     Text `json:"closureStartDate"`
			StartTime     Text `json:"closureStartTime"`
			StartEpoch    Text `json:"closureStartEpoch"`
			EndDate       Text `json:"closureEndDate"`
			EndTime       Text `json:"closureEndTime"`
			EndEpoch      Text `json:"closureEndEpoch"`
			EndIndefinite Text `json:"isClosureEndIndefinite"`
		} `json:"closureTimestamp"`
		Facility           Text `json:"facility"`
		TypeOfClosure      Text `json:"typeOfClosure"`
		TypeOfWork         Text `json:"typeOfWork"`
		DurationOfClosure  Text `json:"durationOfClosure"`
		EstimatedDelay     Text `json:"estimatedDelay"`
		LanesClosed        Text `json:"lanesClosed"`
		TotalExistingLanes Text `json:"totalExistingLanes"`
		IsCHINReportable   Text `json:"isCHINReportable"`
	} `json:"closure"`
}

// TemperatureSensor is one row of the rwis temperature table.
type TemperatureSensor struct {
	Entry struct {
		Index          Text `json:"essTemperatureSensorIndex"`
		AirTemperature Text `json:"essAirTemperature"`
	} `json:"essTemperatureSensorEntry"`
}

// WeatherStation is an rwis record.
type WeatherStation struct {
	Index           Text      `json:"index"`
	RecordTimestamp Timestamp `json:"recordTimestamp"`
	Location        Location  `json:"location"`
	InService       Text      `json:"inService"`
	Data            struct {
		StationData struct {
			AtmosphericPressure Text `json:"essAtmosphericPressure"`
		} `json:"stationData"`
		WindData struct {
			AvgWindDirection  Text `json:"essAvgWindDirection"`
			AvgWindSpeed      Text `json:"essAvgWindSpeed"`
			SpotWindDirection Text `json:"essSpotWindDirection"`
			SpotWindSpeed     Text `json:"essSpotWindSpeed"`
			MaxWindGustSpeed  Text `json:"essMaxWindGustSpeed"`
			MaxWindGustDir    Text `json:"essMaxWindGustDir"`
		} `json:"windData"`
		TemperatureData struct {
			NumSensors   Text                `json:"essNumTemperatureSensors"`
			Sensors      []TemperatureSensor `json:"essTemperatureSensorTable"`
			WetbulbTemp  Text                `json:"essWetbulbTemp"`
			DewpointTemp Text                `json:"essDewpointTemp"`
			MaxTemp      Text                `json:"essMaxTemp"`
			MinTemp      Text                `json:"essMinTemp"`
		} `json:"temperatureData"`
		HumidityPrecipData struct {
			RelativeHumidity Text `json:"essRelativeHumidity"`
			PrecipYesNo      Text `json:"essPrecipYesNo"`
			PrecipRate       Text `json:"essPrecipRate"`
			PrecipSituation  Text `json:"essPrecipSituation"`
			PrecipOneHour    Text `json:"essPrecipitationOneHour"`
			Precip24Hours    Text `json:"essPrecipitation24Hours"`
		} `json:"humidityPrecipData"`
		VisibilityData struct {
			Visibility          Text `json:"essVisibility"`
			VisibilitySituation Text `json:"essVisibilitySituation"`
		} `json:"visibilityData"`
	} `json:"rwisData"`
}

// AirTemperature returns the first sensor's air temperature.
func (w WeatherStation) AirTemperature() Text {
	for _, s := range w.Data.TemperatureData.Sensors {
		if s.Entry.AirTemperature != "" {
			return s.Entry.AirTemperature
		}
	}
	return ""
}

// TravelTimeRoute is a tt record.
type TravelTimeRoute struct {
	Index           Text            `json:"index"`
	RecordTimestamp Timestamp       `json:"recordTimestamp"`
	Location        SegmentLocation `json:"location"`
	Traveltime      struct {
		RouteID              Text      `json:"traveltimeRouteID"`
		Timestamp            Timestamp `json:"traveltimeTimestamp"`
		CalculatedTraveltime Text      `json:"calculatedTraveltime"`
		UpdateFrequency      Text      `json:"traveltimeUpdateFrequency"`
		Accuracy             Text      `json:"traveltimeAccuracy"`
	} `json:"traveltime"`
}

func (ChainControlStatus) DataType() DataType { return ChainControl }
func (Camera) DataType() DataType             { return CCTV }
func (MessageSignStatus) DataType() DataType  { return MessageSign }
func (LaneClosureStatus) DataType() DataType  { return LaneClosure }
func (WeatherStation) DataType() DataType     { return RoadWeather }
func (TravelTimeRoute) DataType() DataType    { return TravelTime }

func (r ChainControlStatus) RecordIndex() Text { return r.Index }
func (r Camera) RecordIndex() Text             { return r.Index }
func (r MessageSignStatus) RecordIndex() Text  { return r.Index }
func (r LaneClosureStatus) RecordIndex() Text  { return r.Index }
func (r WeatherStation) RecordIndex() Text     { return r.Index }
func (r TravelTimeRoute) RecordIndex() Text    { return r.Index }

func (r ChainControlStatus) Position() (Position, bool) {
	return pointPosition(r.Location.Latitude, r.Location.Longitude, r.Location.District)
}

func (r Camera) Position() (Position, bool) {
	return pointPosition(r.Location.Latitude, r.Location.Longitude, r.Location.District)
}

func (r MessageSignStatus) Position() (Position, bool) {
	return pointPosition(r.Location.Latitude, r.Location.Longitude, r.Location.District)
}

// Position of a closure is where it begins.
func (r LaneClosureStatus) Position() (Position, bool) {
	b := r.Location.Begin
	return pointPosition(b.Latitude, b.Longitude, b.District)
}

func (r WeatherStation) Position() (Position, bool) {
	return pointPosition(r.Location.Latitude, r.Location.Longitude, r.Location.District)
}

// Position of a travel-time route is its starting point.
func (r TravelTimeRoute) Position() (Position, bool) {
	b := r.Location.Begin
	return pointPosition(b.Latitude, b.Longitude, b.District)
}

func (ChainControlStatus) sealed() {}
func (Camera) sealed()             {}
func (MessageSignStatus) sealed()  {}
func (LaneClosureStatus) sealed()  {}
func (WeatherStation) sealed()     {}
func (TravelTimeRoute) sealed()    {}

// DecodePayload builds the typed view of one feed element, e.g. {"cc": {...}}.
// The returned payload is never nil for a valid type: when the element does not match
// the expected shape, whatever could be decoded is returned alongside the error.
func DecodePayload(t DataType, element []byte) (Payload, error) {
	var err error
	switch t {
	case ChainControl:
		var w struct {
			V ChainControlStatus `json:"cc"`
		}
		err = json.Unmarshal(element, &w)
		return w.V, err
	case CCTV:
		var w struct {
			V Camera `json:"cctv"`
		}
		err = json.Unmarshal(element, &w)
		return w.V, err
	case MessageSign:
		var w struct {
			V MessageSignStatus `json:"cms"`
		}
		err = json.Unmarshal(element, &w)
		return w.V, err
	case LaneClosure:
		var w struct {
			V LaneClosureStatus `json:"lcs"`
		}
		err = json.Unmarshal(element, &w)
		return w.V, err
	case RoadWeather:
		var w struct {
			V WeatherStation `json:"rwis"`
		}
		err = json.Unmarshal(element, &w)
		return w.V, err
	case TravelTime:
		var w struct {
			V TravelTimeRoute `json:"tt"`
		}
		err = json.Unmarshal(element, &w)
		return w.V, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, string(t))
	}
}
