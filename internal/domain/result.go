package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Endpoint is the resolved feed address for exactly one (type, district) pair.
type Endpoint struct {
	Type     DataType
	District District
	URL      string
}

// Envelope is the wire wrapper every CWWP2 feed uses: {"data": [ ... ]}.
type Envelope struct {
	Data []json.RawMessage `json:"data"`
}

// TaggedRecord is one feed element annotated with the type it came from.
// The element is kept verbatim; Payload is a typed view decoded from it.
type TaggedRecord struct {
	Type    DataType
	Payload Payload
	raw     []byte
}

// NewTaggedRecord copies element so the record never aliases a decode buffer.
func NewTaggedRecord(t DataType, element []byte, payload Payload) TaggedRecord {
	return TaggedRecord{Type: t, Payload: payload, raw: bytes.Clone(element)}
}

// Raw returns a copy of the verbatim feed element.
func (r TaggedRecord) Raw() []byte {
	return bytes.Clone(r.raw)
}

// MarshalJSON renders the feed element unchanged apart from an added "type" field.
func (r TaggedRecord) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(r.raw) > 0 {
		if err := json.Unmarshal(r.raw, &fields); err != nil {
			return nil, fmt.Errorf("tagged %s record: %w", r.Type, err)
		}
	}
	tag, err := json.Marshal(r.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

// AggregateResult maps every data type to its ordered records. All six keys are always present.
type AggregateResult map[DataType][]TaggedRecord

// NewAggregateResult returns a result with an empty bucket for every type.
func NewAggregateResult() AggregateResult {
	result := make(AggregateResult, len(dataTypes))
	for _, t := range dataTypes {
		result[t] = []TaggedRecord{}
	}
	return result
}

// Append adds records to the bucket for t, keeping their order.
func (r AggregateResult) Append(t DataType, records ...TaggedRecord) {
	r[t] = append(r[t], records...)
}

// Bucket returns the records for t; never nil for a result built by NewAggregateResult.
func (r AggregateResult) Bucket(t DataType) []TaggedRecord {
	return r[t]
}

// Len counts records across all buckets.
func (r AggregateResult) Len() int {
	total := 0
	for _, records := range r {
		total += len(records)
	}
	return total
}

// Empty reports whether no bucket holds a record, i.e. nothing is available for the selection.
func (r AggregateResult) Empty() bool {
	return r.Len() == 0
}

// Counts returns the number of records per type.
func (r AggregateResult) Counts() map[DataType]int {
	counts := make(map[DataType]int, len(dataTypes))
	for _, t := range dataTypes {
		counts[t] = len(r[t])
	}
	return counts
}

// FetchErrorKind classifies why a single feed could not be retrieved.
type FetchErrorKind string

const (
	FetchTransport FetchErrorKind = "transport"
	FetchBadStatus FetchErrorKind = "bad_status"
	FetchDecode    FetchErrorKind = "decode"
)

// FetchError is the failure value for one feed retrieval.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchBadStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Failure is one entry of the aggregation failure log.
type Failure struct {
	District District       `json:"district"`
	Type     DataType       `json:"type"`
	Kind     FetchErrorKind `json:"kind"`
	URL      string         `json:"url"`
	Status   int            `json:"status,omitempty"`
	Message  string         `json:"message"`
	Err      error          `json:"-"`
}

// NewFailure records err against the endpoint it happened on.
func NewFailure(ep Endpoint, err *FetchError) Failure {
	return Failure{
		District: ep.District,
		Type:     ep.Type,
		Kind:     err.Kind,
		URL:      ep.URL,
		Status:   err.Status,
		Message:  err.Error(),
		Err:      err,
	}
}

// Report is what one aggregation call produces: the buckets and the per-feed failures.
type Report struct {
	Result   AggregateResult `json:"result"`
	Failures []Failure       `json:"failures"`
}

// Snapshot is a published, point-in-time report plus the request that produced it.
type Snapshot struct {
	ID         string     `json:"id"`
	Generation uint64     `json:"generation"`
	Selection  Selection  `json:"mask"`
	Types      []DataType `json:"types"`
	Districts  []District `json:"districts"`
	FetchedAt  time.Time  `json:"fetched_at"`
	Report
}
