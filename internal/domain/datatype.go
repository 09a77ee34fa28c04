package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DataType identifies one of the six CWWP2 feed families.
type DataType string

const (
	ChainControl DataType = "cc"
	CCTV         DataType = "cctv"
	MessageSign  DataType = "cms"
	LaneClosure  DataType = "lcs"
	RoadWeather  DataType = "rwis"
	TravelTime   DataType = "tt"
)

// canonical order doubles as the bit order of a Selection mask.
var dataTypes = [...]DataType{ChainControl, CCTV, MessageSign, LaneClosure, RoadWeather, TravelTime}

var (
	ErrUnknownDataType  = errors.New("unknown data type")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidDistrict  = errors.New("invalid district")
)

// DataTypes returns every data type in canonical order.
func DataTypes() []DataType {
	out := make([]DataType, len(dataTypes))
	copy(out, dataTypes[:])
	return out
}

// ParseDataType accepts a type code such as "cc" or "RWIS".
func ParseDataType(value string) (DataType, error) {
	t := DataType(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDataType, value)
	}
	return t, nil
}

// Valid reports whether t is one of the six known codes.
func (t DataType) Valid() bool {
	return t.bit() >= 0
}

// Label is the upper-case code used in headers and popups.
func (t DataType) Label() string {
	return strings.ToUpper(string(t))
}

func (t DataType) bit() int {
	for i, candidate := range dataTypes {
		if candidate == t {
			return i
		}
	}
	return -1
}

// Selection is a 6-bit set over the canonical type order; bit i selects DataTypes()[i].
type Selection uint8

const fullSelection Selection = 1<<len(dataTypes) - 1

// SelectionFromMask validates a presentation-layer bitmask.
func SelectionFromMask(mask int) (Selection, error) {
	if mask < 0 || mask > int(fullSelection) {
		return 0, fmt.Errorf("%w: mask %d outside 0..%d", ErrInvalidSelection, mask, fullSelection)
	}
	return Selection(mask), nil
}

// Select builds a selection from explicit types; unknown types are ignored.
func Select(types ...DataType) Selection {
	var s Selection
	for _, t := range types {
		if bit := t.bit(); bit >= 0 {
			s |= 1 << bit
		}
	}
	return s
}

// ParseSelection accepts a list of type codes, e.g. from a comma separated query value.
func ParseSelection(codes []string) (Selection, error) {
	var s Selection
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		t, err := ParseDataType(code)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
		}
		s |= Select(t)
	}
	return s, nil
}

// Has reports whether t is selected.
func (s Selection) Has(t DataType) bool {
	bit := t.bit()
	return bit >= 0 && s&(1<<bit) != 0
}

// Types lists the selected types in canonical order regardless of how the selection was built.
func (s Selection) Types() []DataType {
	out := make([]DataType, 0, len(dataTypes))
	for _, t := range dataTypes {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Mask returns the integer bitmask form.
func (s Selection) Mask() int {
	return int(s & fullSelection)
}

func (s Selection) IsEmpty() bool {
	return s&fullSelection == 0
}

func (s Selection) String() string {
	codes := make([]string, 0, len(dataTypes))
	for _, t := range s.Types() {
		codes = append(codes, string(t))
	}
	return strings.Join(codes, ",")
}

// District is one of the twelve Caltrans highway districts.
type District int

const (
	MinDistrict District = 1
	MaxDistrict District = 12
)

func (d District) Valid() bool {
	return d >= MinDistrict && d <= MaxDistrict
}

// ParseDistricts parses a comma separated list, dropping repeats but keeping first-seen order.
func ParseDistricts(value string) ([]District, error) {
	parts := strings.Split(value, ",")
	raw := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDistrict, part)
		}
		raw = append(raw, n)
	}
	return DistrictsFromInts(raw)
}

// DistrictsFromInts validates and de-duplicates districts, keeping first-seen order.
func DistrictsFromInts(values []int) ([]District, error) {
	out := make([]District, 0, len(values))
	seen := make(map[District]struct{}, len(values))
	for _, v := range values {
		d := District(v)
		if !d.Valid() {
			return nil, fmt.Errorf("%w: %d outside %d..%d", ErrInvalidDistrict, v, MinDistrict, MaxDistrict)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}
