package decoder

import (
	"encoding/json"
	"strconv"
	"strings"
)

// keyStrategy is one way of deriving the natural key of an entity.
//
// extract reports false when the strategy's precondition does not hold for the
// document, in which case the next strategy is tried.
type keyStrategy struct {
	name    string
	extract func(doc Document) (string, bool)
}

// fieldKey key taken verbatim from a scalar at the given path.
//
// Precondition: the path resolves to a non-blank string or a non-zero number.
// Booleans and zero never name an entity.
func fieldKey(name string, path ...string) keyStrategy {
	return keyStrategy{
		name: name,
		extract: func(doc Document) (string, bool) {
			switch value := doc.Value(path...).(type) {
			case string:
				if strings.TrimSpace(value) == "" {
					return "", false
				}
				return value, true
			case json.Number:
				if f, err := value.Float64(); err == nil && f == 0 {
					return "", false
				}
				return value.String(), true
			case float64:
				if value == 0 {
					return "", false
				}
				return strconv.FormatFloat(value, 'f', -1, 64), true
			}
			return "", false
		},
	}
}

// compositeFields top level fields some feeds use to carry a scoped entity id
var compositeFields = []string{"entity_id", "entityId", "vehicle_key"}

// compositeSeparators separators seen between scope and id in composite ids
const compositeSeparators = ":|_"

// compositeKey key parsed out of a scoped id such as "LACMTA:1234".
//
// Precondition: one of the compositeFields holds a non-blank string. The
// trailing non-empty segment is the key; an unscoped value is used whole.
func compositeKey() keyStrategy {
	return keyStrategy{
		name: "composite-id",
		extract: func(doc Document) (string, bool) {
			for _, field := range compositeFields {
				value, ok := doc.String(field)
				if !ok {
					continue
				}
				segments := strings.FieldsFunc(value, func(r rune) bool {
					return strings.ContainsRune(compositeSeparators, r)
				})
				for idx := len(segments) - 1; idx >= 0; idx-- {
					if segment := strings.TrimSpace(segments[idx]); segment != "" {
						return segment, true
					}
				}
			}
			return "", false
		},
	}
}

var vehicleKeyStrategies = []keyStrategy{
	fieldKey("entity-id", "id"),
	fieldKey("vehicle-id", "vehicle", "vehicle", "id"),
	fieldKey("vehicle-label", "vehicle", "vehicle", "label"),
	compositeKey(),
}

var tripUpdateKeyStrategies = []keyStrategy{
	fieldKey("entity-id", "id"),
	fieldKey("trip-id", "tripUpdate", "trip", "tripId"),
	fieldKey("vehicle-id", "tripUpdate", "vehicle", "id"),
	fieldKey("vehicle-label", "tripUpdate", "vehicle", "label"),
	compositeKey(),
}

// ExtractKey derive the natural key of a document for a feed variant.
//
// Returns false when no strategy yields a key.
func ExtractKey(variant Variant, doc Document) (string, bool) {
	strategies := vehicleKeyStrategies
	if variant == TripUpdate {
		strategies = tripUpdateKeyStrategies
	}
	for _, strategy := range strategies {
		if key, ok := strategy.extract(doc); ok {
			return key, true
		}
	}
	return "", false
}
