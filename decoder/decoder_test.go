package decoder

import (
	"errors"
	"testing"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/proto"
)

func TestDecodeVehicleText(t *testing.T) {
	assert := assert.New(t)
	uut := GetDecoder(VehiclePosition)

	// Case 0: plain vehicle entity keyed by id
	{
		result, err := uut.Decode(Frame{Data: []byte(`{
			"id": "V1",
			"route_code": 801,
			"vehicle": {
				"position": {"latitude": 34.0, "longitude": -118.2},
				"vehicle": {"id": "inner", "label": "L1"}
			}
		}`)})
		assert.Nil(err)
		assert.Equal(0, result.Keyless)
		assert.Len(result.Entities, 1)
		assert.Equal("V1", result.Entities[0].Key)
		routeCode, ok := result.Entities[0].Payload.String("route_code")
		assert.True(ok)
		assert.Equal("801", routeCode)
		lat, ok := result.Entities[0].Payload.Float("vehicle", "position", "latitude")
		assert.True(ok)
		assert.Equal(34.0, lat)
	}

	// Case 1: fall back to nested vehicle id
	{
		result, err := uut.Decode(Frame{Data: []byte(
			`{"id": "  ", "vehicle": {"vehicle": {"id": 4410, "label": "L1"}}}`,
		)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("4410", result.Entities[0].Key)

		// Booleans and zero are not keys
		result, err = uut.Decode(Frame{Data: []byte(
			`{"id": false, "vehicle": {"vehicle": {"id": "V9"}}}`,
		)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("V9", result.Entities[0].Key)
		result, err = uut.Decode(Frame{Data: []byte(
			`{"id": 0, "vehicle": {"vehicle": {"id": true, "label": "L7"}}}`,
		)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("L7", result.Entities[0].Key)
	}

	// Case 2: fall back to nested vehicle label
	{
		result, err := uut.Decode(Frame{Data: []byte(`{"vehicle": {"vehicle": {"label": "L1"}}}`)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("L1", result.Entities[0].Key)
	}

	// Case 3: fall back to composite id
	{
		result, err := uut.Decode(Frame{Data: []byte(`{"entity_id": "LACMTA_Rail:4410"}`)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("4410", result.Entities[0].Key)
	}

	// Case 4: keyless control message
	{
		result, err := uut.Decode(Frame{Data: []byte(`{"type": "heartbeat"}`)})
		assert.Nil(err)
		assert.Empty(result.Entities)
		assert.Equal(1, result.Keyless)
	}

	// Case 5: FeedMessage envelope
	{
		result, err := uut.Decode(Frame{Data: []byte(`{
			"header": {"gtfsRealtimeVersion": "2.0"},
			"entity": [
				{"id": "A"},
				{"id": "B"},
				{"alert": {}},
				"junk"
			]
		}`)})
		assert.Nil(err)
		assert.Len(result.Entities, 2)
		assert.Equal("A", result.Entities[0].Key)
		assert.Equal("B", result.Entities[1].Key)
		assert.Equal(2, result.Keyless)
	}
}

func TestDecodeTripUpdateText(t *testing.T) {
	assert := assert.New(t)
	uut := GetDecoder(TripUpdate)

	// Case 0: keyed by trip id
	{
		result, err := uut.Decode(Frame{Data: []byte(
			`{"tripUpdate": {"trip": {"tripId": "T-100"}, "vehicle": {"id": "V1"}}}`,
		)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("T-100", result.Entities[0].Key)
	}

	// Case 1: keyed by vehicle when the trip id is missing
	{
		result, err := uut.Decode(Frame{Data: []byte(
			`{"tripUpdate": {"trip": {}, "vehicle": {"id": "V1"}}}`,
		)})
		assert.Nil(err)
		assert.Len(result.Entities, 1)
		assert.Equal("V1", result.Entities[0].Key)
	}

	// Case 2: vehicle payload shapes do not key trip updates
	{
		result, err := uut.Decode(Frame{Data: []byte(`{"vehicle": {"vehicle": {"id": "V1"}}}`)})
		assert.Nil(err)
		assert.Empty(result.Entities)
		assert.Equal(1, result.Keyless)
	}
}

func TestDecodeMalformed(t *testing.T) {
	assert := assert.New(t)
	uut := GetDecoder(VehiclePosition)

	for _, frame := range []Frame{
		{Data: []byte(`{"id": "V1"`)},
		{Data: []byte(``)},
		{Data: []byte(`"just a string"`)},
		{Data: []byte(`{"id": "V1"} {"id": "V2"}`)},
		{Data: []byte{0xff, 0xfe, '{', '}'}},
		{Binary: true, Data: []byte{0xff, 0xff, 0xff, 0xff}},
	} {
		result, err := uut.Decode(frame)
		assert.NotNil(err)
		assert.True(errors.Is(err, ErrMalformedPayload))
		assert.Empty(result.Entities)
	}
}

func TestDecodeProtobuf(t *testing.T) {
	assert := assert.New(t)
	uut := GetDecoder(VehiclePosition)

	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("V1"),
				Vehicle: &gtfs.VehiclePosition{
					Trip: &gtfs.TripDescriptor{
						TripId: proto.String("T-1"), RouteId: proto.String("801"),
					},
					Position: &gtfs.Position{
						Latitude: proto.Float32(34.0), Longitude: proto.Float32(-118.25),
					},
				},
			},
			{
				Id: proto.String("V2"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle: &gtfs.VehicleDescriptor{Label: proto.String("L2")},
				},
			},
		},
	}
	raw, err := proto.Marshal(msg)
	assert.Nil(err)

	result, err := uut.Decode(Frame{Binary: true, Data: raw})
	assert.Nil(err)
	assert.Len(result.Entities, 2)
	assert.Equal("V1", result.Entities[0].Key)
	routeID, ok := result.Entities[0].Payload.String("vehicle", "trip", "routeId")
	assert.True(ok)
	assert.Equal("801", routeID)
	lon, ok := result.Entities[0].Payload.Float("vehicle", "position", "longitude")
	assert.True(ok)
	assert.InDelta(-118.25, lon, 0.0001)
	label, ok := result.Entities[1].Payload.String("vehicle", "vehicle", "label")
	assert.True(ok)
	assert.Equal("L2", label)

	// JSON text delivered in a binary frame
	result, err = uut.Decode(Frame{Binary: true, Data: []byte(`{"id": "V3"}`)})
	assert.Nil(err)
	assert.Len(result.Entities, 1)
	assert.Equal("V3", result.Entities[0].Key)
}

func TestDocumentAccessors(t *testing.T) {
	assert := assert.New(t)

	doc := Document{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": "text", "n": "12.5", "bad": "NaN"},
		},
		"flag": true,
	}

	v, ok := doc.String("a", "b", "c")
	assert.True(ok)
	assert.Equal("text", v)

	f, ok := doc.Float("a", "b", "n")
	assert.True(ok)
	assert.Equal(12.5, f)

	_, ok = doc.Float("a", "b", "bad")
	assert.False(ok)

	_, ok = doc.String("a", "missing", "c")
	assert.False(ok)

	_, ok = doc.String("a", "b")
	assert.False(ok)

	assert.NotNil(doc.Object("a", "b"))
	assert.Nil(doc.Object("a", "b", "c"))

	v, ok = doc.String("flag")
	assert.True(ok)
	assert.Equal("true", v)
}
