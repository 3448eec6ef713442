package feature

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Property keys recognized on input records.
const (
	PropName        = "name"
	PropHouseNumber = "addr:housenumber"
	PropStreet      = "addr:street"
	PropUnit        = "addr:unit"
	PropCity        = "addr:city"
	PropPostcode    = "addr:postcode"
	PropFull        = "addr:full"
	PropPhone       = "phone"
	PropGUID        = "dedupe:guid"
)

// Geometry is a GeoJSON geometry. Only point coordinates are interpreted;
// other geometry types pass through untouched.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Feature is one geotagged entity record.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Prop returns a property as a trimmed string. Numeric values such as bare
// house numbers are rendered; anything else reads as empty.
func (f *Feature) Prop(key string) string {
	if f.Properties == nil {
		return ""
	}
	switch v := f.Properties[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// SetProp sets a string property, allocating the map on first use.
func (f *Feature) SetProp(key, value string) {
	if f.Properties == nil {
		f.Properties = make(map[string]interface{})
	}
	f.Properties[key] = value
}

func (f *Feature) Name() string        { return f.Prop(PropName) }
func (f *Feature) HouseNumber() string { return f.Prop(PropHouseNumber) }
func (f *Feature) Street() string      { return f.Prop(PropStreet) }
func (f *Feature) Unit() string        { return f.Prop(PropUnit) }
func (f *Feature) Postcode() string    { return f.Prop(PropPostcode) }
func (f *Feature) Phone() string       { return f.Prop(PropPhone) }

// GUID returns the record's attached identifier, if any.
func (f *Feature) GUID() string { return f.Prop(PropGUID) }

// SetGUID attaches the record identifier.
func (f *Feature) SetGUID(guid string) { f.SetProp(PropGUID, guid) }

// Coordinates returns the record's point location when it carries a
// resolvable one.
func (f *Feature) Coordinates() (lng, lat float64, ok bool) {
	g := f.Geometry
	if g == nil || len(g.Coordinates) < 2 {
		return 0, 0, false
	}
	lng, lat = g.Coordinates[0], g.Coordinates[1]
	if !ValidCoordinates(lat, lng) {
		return 0, 0, false
	}
	return lng, lat, true
}

// ValidCoordinates reports whether a latitude/longitude pair is usable.
// The (0, 0) null island placeholder counts as unresolved.
func ValidCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Marshal encodes the feature as compact JSON.
func (f *Feature) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored feature payload.
func Unmarshal(data []byte) (*Feature, error) {
	var f Feature
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode feature: %w", err)
	}
	return &f, nil
}
