package normalize

import (
	"bytes"

	"TrafficFeeds/internal/domain"
)

// Normalize tags every object element of env with t. Elements that are not JSON
// objects are dropped; an absent or empty data array yields an empty slice.
func Normalize(t domain.DataType, env domain.Envelope) []domain.TaggedRecord {
	records := make([]domain.TaggedRecord, 0, len(env.Data))
	for _, element := range env.Data {
		trimmed := bytes.TrimSpace(element)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		// A shape mismatch still leaves a usable partial view; the raw element is authoritative.
		payload, _ := domain.DecodePayload(t, trimmed)
		records = append(records, domain.NewTaggedRecord(t, trimmed, payload))
	}
	return records
}
