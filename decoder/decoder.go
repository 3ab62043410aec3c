package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ErrMalformedPayload a frame could not be parsed into a document
var ErrMalformedPayload = errors.New("malformed payload")

// Variant the kind of telemetry a feed carries
type Variant int

const (
	// VehiclePosition vehicle position feed
	VehiclePosition Variant = iota
	// TripUpdate trip update feed
	TripUpdate
)

// String toString function
func (v Variant) String() string {
	switch v {
	case VehiclePosition:
		return "vehicle_positions"
	case TripUpdate:
		return "trip_updates"
	}
	return "unknown"
}

// Frame one inbound transport message
type Frame struct {
	// Binary whether the transport delivered the frame as binary data
	Binary bool
	// Data the frame content
	Data []byte
}

// Entity a decoded, keyed telemetry entity
type Entity struct {
	Key     string
	Payload Document
}

// Result outcome of decoding one frame
type Result struct {
	// Entities the keyed entities found in the frame
	Entities []Entity
	// Keyless the number of entities dropped for lack of a key
	Keyless int
}

// Decoder parses frames of one feed variant
type Decoder interface {
	// Decode parse a frame into keyed entities.
	//
	// A frame which can not be parsed returns an error wrapping ErrMalformedPayload.
	// Entities without a derivable key are not an error; they are only counted.
	Decode(frame Frame) (Result, error)
}

// decoderImpl implements Decoder
type decoderImpl struct {
	variant Variant
}

// GetDecoder define a new Decoder for a feed variant
func GetDecoder(variant Variant) Decoder {
	return &decoderImpl{variant: variant}
}

// Decode parse a frame into keyed entities
func (d *decoderImpl) Decode(frame Frame) (Result, error) {
	if frame.Binary && !looksLikeJSON(frame.Data) {
		return d.decodeProtobuf(frame.Data)
	}
	return d.decodeText(frame.Data)
}

// looksLikeJSON some servers send JSON text in binary frames
func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !utf8.Valid(trimmed) {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

func (d *decoderImpl) decodeText(data []byte) (Result, error) {
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("%w: frame is not valid UTF-8", ErrMalformedPayload)
	}
	parsed, err := parseJSON(data)
	if err != nil {
		return Result{}, err
	}
	var result Result
	switch t := parsed.(type) {
	case map[string]interface{}:
		if entities, ok := t["entity"].([]interface{}); ok {
			d.collect(&result, entities)
		} else {
			d.collect(&result, []interface{}{t})
		}
	case []interface{}:
		d.collect(&result, t)
	default:
		return Result{}, fmt.Errorf("%w: expected JSON object, got %T", ErrMalformedPayload, parsed)
	}
	return result, nil
}

func (d *decoderImpl) decodeProtobuf(data []byte) (Result, error) {
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(data, &feed); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var result Result
	entities := make([]interface{}, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		asJSON, err := protojson.Marshal(entity)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		parsed, err := parseJSON(asJSON)
		if err != nil {
			return Result{}, err
		}
		entities = append(entities, parsed)
	}
	d.collect(&result, entities)
	return result, nil
}

// collect key each candidate entity, counting the ones without a key
func (d *decoderImpl) collect(result *Result, candidates []interface{}) {
	for _, candidate := range candidates {
		obj, ok := candidate.(map[string]interface{})
		if !ok {
			result.Keyless++
			continue
		}
		doc := Document(obj)
		key, ok := ExtractKey(d.variant, doc)
		if !ok {
			result.Keyless++
			continue
		}
		result.Entities = append(result.Entities, Entity{Key: key, Payload: doc})
	}
}

// parseJSON parse exactly one JSON value, keeping numbers verbatim
func parseJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var trailing interface{}
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON value", ErrMalformedPayload)
	}
	return parsed, nil
}
