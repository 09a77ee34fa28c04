package marker

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficFeeds/internal/domain"
)

func add(t *testing.T, result domain.AggregateResult, dt domain.DataType, element string) {
	t.Helper()
	payload, err := domain.DecodePayload(dt, []byte(element))
	require.NoError(t, err)
	result.Append(dt, domain.NewTaggedRecord(dt, []byte(element), payload))
}

func TestProjectFiltersAndDedupes(t *testing.T) {
	t.Parallel()

	result := domain.NewAggregateResult()
	add(t, result, domain.ChainControl, `{"cc":{"index":"1","location":{"district":"3","latitude":"39.1","longitude":"-120.9"},
		"statusData":{"statusDescription":"No chain controls are in effect at this time."}}}`)
	add(t, result, domain.ChainControl, `{"cc":{"index":"2","location":{"district":"3","latitude":"39.2","longitude":"-120.8"},
		"statusData":{"status":"R-1","statusDescription":"Chains required"}}}`)
	add(t, result, domain.CCTV, `{"cctv":{"index":"3","location":{"district":"3","latitude":"39.1","longitude":"-120.9"}}}`)
	add(t, result, domain.CCTV, `{"cctv":{"index":"4","location":{"district":"4","latitude":"37.7","longitude":"-122.4"}}}`)
	add(t, result, domain.CCTV, `{"cctv":{"index":"5","location":{"district":"3","latitude":"","longitude":"-120.1"}}}`)
	add(t, result, domain.MessageSign, `{"cms":{"index":"6","location":{"district":"3","latitude":"38.6","longitude":"-121.3"},
		"message":{"display":"Blank"}}}`)
	add(t, result, domain.TravelTime, `{"tt":{"index":"7","location":{"begin":{"beginDistrict":"3","beginLatitude":"38.5","beginLongitude":"-121.5"}}}}`)

	markers := Project(result, Filter{District: 3})
	require.Len(t, markers, 2)

	assert.Equal(t, domain.ChainControl, markers[0].Type)
	assert.Equal(t, "39.2--120.8", markers[0].ID)
	assert.Equal(t, "Chains required", markers[0].Popup.Lines[4].Value)

	assert.Equal(t, domain.TravelTime, markers[1].Type)
	assert.InDelta(t, 38.5, markers[1].Latitude, 1e-9)

	all := Project(result, Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, domain.District(4), all[1].District)
}

func TestProjectBounds(t *testing.T) {
	t.Parallel()

	result := domain.NewAggregateResult()
	add(t, result, domain.RoadWeather, `{"rwis":{"index":"1","location":{"district":"2","latitude":"41.0","longitude":"-122.0"}}}`)
	add(t, result, domain.RoadWeather, `{"rwis":{"index":"2","location":{"district":"2","latitude":"40.0","longitude":"-121.0"}}}`)

	box := &Bounds{South: 40.5, West: -122.5, North: 41.5, East: -121.5}
	markers := Project(result, Filter{District: 2, Bounds: box})
	require.Len(t, markers, 1)
	require.Equal(t, "1", markers[0].Popup.Lines[0].Value)
}

func TestProjectSkipsNonFiniteCoordinates(t *testing.T) {
	t.Parallel()

	result := domain.NewAggregateResult()
	add(t, result, domain.CCTV, `{"cctv":{"index":"1","location":{"district":"4","latitude":"NaN","longitude":"-122.4"}}}`)
	add(t, result, domain.CCTV, `{"cctv":{"index":"2","location":{"district":"4","latitude":"37.7","longitude":"Infinity"}}}`)
	add(t, result, domain.CCTV, `{"cctv":{"index":"3","location":{"district":"4","latitude":"37.8","longitude":"-122.3"}}}`)

	markers := Project(result, Filter{District: 4})
	require.Len(t, markers, 1)
	require.Equal(t, "3", markers[0].Popup.Lines[0].Value)

	_, err := json.Marshal(markers)
	require.NoError(t, err)
}

func TestPopupMissingFields(t *testing.T) {
	t.Parallel()

	popup := PopupFor(domain.LaneClosureStatus{})
	require.Equal(t, "LCS Object Details", popup.Title)
	for _, line := range popup.Lines {
		require.True(t, strings.Contains(line.Value, missing), "line %s", line.Label)
	}
}

func TestRenderHTMLEscapesAndLinks(t *testing.T) {
	t.Parallel()

	payload, err := domain.DecodePayload(domain.CCTV, []byte(`{"cctv":{"index":"9","location":{"locationName":"<b>I-80</b>","county":"Placer"},
		"inService":"true","imageData":{"streamingVideoURL":"https://example.test/live.m3u8","static":{"currentImageURL":""}}}}`))
	require.NoError(t, err)

	html, err := PopupFor(payload).RenderHTML()
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	root := doc.Find("div.popup-content")
	require.Equal(t, 1, root.Length())
	require.Equal(t, "CCTV Object Details", root.Find("strong").First().Text())
	require.Zero(t, root.Find("b").Length(), "location name must be escaped")
	require.Contains(t, root.Text(), "Location: <b>I-80</b>, Placer")
	require.Contains(t, root.Text(), "Current Image URL: N/A")

	anchor := root.Find("a")
	require.Equal(t, 1, anchor.Length())
	href, _ := anchor.Attr("href")
	require.Equal(t, "https://example.test/live.m3u8", href)
	require.Equal(t, "Watch Stream", anchor.Text())
}

func TestPopupPerType(t *testing.T) {
	t.Parallel()

	sign, err := domain.DecodePayload(domain.MessageSign, []byte(`{"cms":{"message":{"phase1":{"phase1Line1":"FOG","phase1Line2":"AHEAD"}}}}`))
	require.NoError(t, err)
	lines := PopupFor(sign).Lines
	require.Equal(t, []string{"FOG", "AHEAD", missing}, []string{lines[4].Value, lines[5].Value, lines[6].Value})

	route, err := domain.DecodePayload(domain.TravelTime, []byte(`{"tt":{"traveltime":{"calculatedTraveltime":"14"}}}`))
	require.NoError(t, err)
	require.Equal(t, "14 mins", PopupFor(route).Lines[3].Value)

	station, err := domain.DecodePayload(domain.RoadWeather, []byte(`{"rwis":{"rwisData":{"windData":{"essAvgWindSpeed":"12"}}}}`))
	require.NoError(t, err)
	stationLines := PopupFor(station).Lines
	require.Equal(t, missing, stationLines[3].Value)
	require.Equal(t, "12 km/h", stationLines[4].Value)
}
