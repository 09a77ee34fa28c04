package marker

import (
	"bytes"
	"fmt"
	"html/template"

	"TrafficFeeds/internal/domain"
)

const missing = "N/A"

// Line is one labelled popup row. A non-empty Link renders Value as an anchor.
type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Link  string `json:"link,omitempty"`
}

// Popup is the detail card shown for a marker.
type Popup struct {
	Title string `json:"title"`
	Lines []Line `json:"lines"`
}

var popupTemplate = template.Must(template.New("popup").Parse(
	`<div class="popup-content"><strong>{{.Title}}</strong>` +
		`{{range .Lines}}<br>{{if .Label}}{{.Label}}: {{end}}` +
		`{{if .Link}}<a href="{{.Link}}" target="_blank">{{.Value}}</a>{{else}}{{.Value}}{{end}}{{end}}</div>`))

// RenderHTML renders the popup as an HTML fragment with all values escaped.
func (p Popup) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if err := popupTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render popup: %w", err)
	}
	return buf.String(), nil
}

func orMissing(t domain.Text) string {
	if t == "" {
		return missing
	}
	return t.String()
}

func withUnit(t domain.Text, unit string) string {
	if t == "" {
		return missing
	}
	return t.String() + " " + unit
}

func place(name, county domain.Text) string {
	return orMissing(name) + ", " + orMissing(county)
}

func link(label string, url domain.Text) Line {
	if url == "" {
		return Line{Label: label, Value: missing}
	}
	return Line{Label: label, Value: url.String(), Link: url.String()}
}

// PopupFor builds the popup for any record variant.
func PopupFor(p domain.Payload) Popup {
	switch v := p.(type) {
	case domain.ChainControlStatus:
		return Popup{Title: "CC Object Details", Lines: []Line{
			{Label: "Index", Value: orMissing(v.Index)},
			{Label: "Status", Value: orMissing(v.StatusData.Status)},
			{Label: "Location", Value: place(v.Location.LocationName, v.Location.County)},
			{Label: "In Service", Value: orMissing(v.InService)},
			{Label: "Description", Value: orMissing(v.StatusData.StatusDescription)},
		}}
	case domain.Camera:
		image := link("Current Image URL", v.ImageData.Static.CurrentImageURL)
		if image.Link != "" {
			image.Value = "View Image"
		}
		stream := link("Streaming URL", v.ImageData.StreamingVideoURL)
		if stream.Link != "" {
			stream.Value = "Watch Stream"
		}
		return Popup{Title: "CCTV Object Details", Lines: []Line{
			{Label: "Index", Value: orMissing(v.Index)},
			{Label: "Location", Value: place(v.Location.LocationName, v.Location.County)},
			{Label: "In Service", Value: orMissing(v.InService)},
			image,
			stream,
		}}
	case domain.MessageSignStatus:
		phase := v.Phases()[0]
		return Popup{Title: "CMS Object Details", Lines: []Line{
			{Label: "Index", Value: orMissing(v.Index)},
			{Label: "Location", Value: place(v.Location.LocationName, v.Location.County)},
			{Label: "In Service", Value: orMissing(v.InService)},
			{Label: "Message", Value: ""},
			{Value: orMissing(phase.Line1)},
			{Value: orMissing(phase.Line2)},
			{Value: orMissing(phase.Line3)},
		}}
	case domain.LaneClosureStatus:
		loc := v.Location
		return Popup{Title: "LCS Object Details", Lines: []Line{
			{Label: "Index", Value: orMissing(v.Index)},
			{Label: "Begin Location", Value: place(loc.Begin.LocationName, loc.Begin.County)},
			{Label: "End Location", Value: place(loc.End.LocationName, loc.End.County)},
			{Label: "Closure Type", Value: orMissing(v.Closure.TypeOfClosure)},
			{Label: "Estimated Delay", Value: orMissing(v.Closure.EstimatedDelay)},
		}}
	case domain.WeatherStation:
		return Popup{Title: "RWIS Object Details", Lines: []Line{
			{Label: "Index", Value: orMissing(v.Index)},
			{Label: "Location", Value: place(v.Location.LocationName, v.Location.County)},
			{Label: "In Service", Value: orMissing(v.InService)},
			{Label: "Temperature", Value: withUnit(v.AirTemperature(), "°C")},
			{Label: "Wind Speed", Value: withUnit(v.Data.WindData.AvgWindSpeed, "km/h")},
		}}
	case domain.TravelTimeRoute:
		loc := v.Location
		return Popup{Title: "TT Object Details", Lines: []Line{
			{Label: "Index", Value: orMissing(v.Index)},
			{Label: "Start Location", Value: place(loc.Begin.LocationName, loc.Begin.County)},
			{Label: "End Location", Value: place(loc.End.LocationName, loc.End.County)},
			{Label: "Calculated Travel Time", Value: withUnit(v.Traveltime.CalculatedTraveltime, "mins")},
			{Label: "Update Frequency", Value: orMissing(v.Traveltime.UpdateFrequency)},
		}}
	default:
		return Popup{Title: "Unknown Object Type"}
	}
}
