package types

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotblauer/catspeed/types/position"
	"github.com/tidwall/gjson"
)

var ErrDecodePositions = errors.New("could not decode as positions or trackpoints or geojson or geojsonfc")

// DecodePositions decodes a whole payload into positions.
// Supported encodings are anything ScanJSONMessages and DecodingJSONPositionObject
// understand together: JSON arrays or newline-delimited streams of
// plain position objects, legacy trackpoints, GeoJSON features,
// and GeoJSON FeatureCollections.
// An error is returned if nothing at all could be decoded.
func DecodePositions(data []byte) ([]position.Position, error) {
	out := []position.Position{}
	err := ReadPositions(bytes.NewReader(data), func(p position.Position) error {
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrDecodePositions
	}
	return out, nil
}

// ReadPositions streams positions from r, calling onEach for each in order.
func ReadPositions(r io.Reader, onEach func(p position.Position) error) error {
	return ScanJSONMessages(r, func(msg json.RawMessage) error {
		return DecodingJSONPositionObject(msg, onEach)
	})
}

// ScanJSONMessages reads a stream of JSON messages from an io.Reader,
// and calls onEach for each decoded message.
// If the stream is encoded as a JSON array, this function will
// call onEach for each element in the array.
// A GeoJSON FeatureCollection is a single object, and will be treated as such;
// use DecodingJSONPositionObject to handle the 'features' within.
func ScanJSONMessages(body io.Reader, onEach func(message json.RawMessage) error) error {
	buf := bufio.NewReader(body)
	peek, err := peekNonSpace(buf)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(buf)
	if peek == '[' {
		if _, err := dec.Token(); err != nil {
			return err
		}
	}
	for dec.More() {
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode err: %w", err)
		}
		if err := onEach(msg); err != nil {
			return err
		}
	}
	return nil
}

func peekNonSpace(buf *bufio.Reader) (byte, error) {
	for {
		b, err := buf.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = buf.ReadByte()
			continue
		}
		return b[0], nil
	}
}

// DecodingJSONPositionObject recursively decodes a JSON message into positions.
// If the message is a FeatureCollection, it will call onEach for each feature.
// It assumes that the message is a single object, and will error if given an array.
func DecodingJSONPositionObject(msg json.RawMessage, onEach func(p position.Position) error) error {
	parsed := gjson.ParseBytes(msg)

	if !parsed.IsObject() {
		return errors.New("unexpected non-object, want position object")
	}

	// Only GeoJSON objects will have a 'type' attribute;
	// plain positions and trackpoints will not.
	pType := parsed.Get("type")
	if !pType.Exists() {
		p, err := decodePlainPosition(parsed)
		if err != nil {
			return err
		}
		return onEach(p)
	}

	switch pType.String() {
	case "FeatureCollection":
		feats := parsed.Get("features")
		if !feats.Exists() {
			return errors.New("no 'features' attribute present in feature collection")
		}
		for _, f := range feats.Array() {
			if err := DecodingJSONPositionObject([]byte(f.Raw), onEach); err != nil {
				return err
			}
		}
		return nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(msg)
		if err != nil {
			return err
		}
		p, err := position.FromFeature(f)
		if err != nil {
			return err
		}
		return onEach(p)
	}
	return fmt.Errorf("unsupported type %q", pType.String())
}

// decodePlainPosition reads {"lat","lng","timestamp"} objects,
// tolerating the legacy trackpoint spellings "long" and "time".
func decodePlainPosition(obj gjson.Result) (position.Position, error) {
	lat := obj.Get("lat")
	lng := obj.Get("lng")
	if !lng.Exists() {
		lng = obj.Get("lon")
	}
	if !lng.Exists() {
		lng = obj.Get("long")
	}
	if !lat.Exists() || !lng.Exists() {
		return position.Position{}, errors.New("missing lat or lng")
	}

	var ms int64
	if ts := obj.Get("timestamp"); ts.Exists() {
		ms = ts.Int()
	} else if ts := obj.Get("time"); ts.Exists() {
		t, err := time.Parse(time.RFC3339Nano, ts.String())
		if err != nil {
			return position.Position{}, err
		}
		ms = t.UnixMilli()
	} else {
		return position.Position{}, errors.New("missing timestamp or time")
	}

	// Legacy trackpoints also carry a reported speed (m/s, -1 for unknown). Ignored.
	return position.New(lat.Float(), lng.Float(), ms), nil
}
