// Package geojson implements the GeoJSON driver: an incremental decoder for
// FeatureCollections delivered in arbitrary byte chunks, strict and
// truncation-tolerant one-shot parsers, a batching reader and a writer.
package geojson

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
)

// MaxBufferSize bounds how many bytes the decoder holds while looking for
// the collection header or waiting for a parseable feature.
const MaxBufferSize = 1024 * 1024

const initialBufferSize = 256 * 1024

type decoderState int

const (
	stateExpectingHeader decoderState = iota
	stateExpectingFeature
	stateExpectingCommaOrClose
	stateDone
)

func (s decoderState) String() string {
	switch s {
	case stateExpectingHeader:
		return "ExpectingHeader"
	case stateExpectingFeature:
		return "ExpectingFeature"
	case stateExpectingCommaOrClose:
		return "ExpectingCommaOrClose"
	default:
		return "Done"
	}
}

// Decoder turns a FeatureCollection delivered as byte chunks into records.
// It keeps only the unconsumed suffix of the stream, so memory is bounded by
// the largest single feature rather than by the file size.
//
// Every call rescans the live buffer from its start. For features of a few
// kilobytes this is cheaper than carrying scanner state across calls, but a
// single huge feature fed in tiny chunks costs time quadratic in its size
// (see BenchmarkDecodeLargeFeature).
//
// A Decoder is not safe for concurrent use and serves exactly one source.
type Decoder struct {
	buf     []byte
	state   decoderState
	source  string
	decoded int
}

// NewDecoder creates a decoder; source is used only in error messages.
func NewDecoder(source string) *Decoder {
	return &Decoder{
		buf:    make([]byte, 0, initialBufferSize),
		state:  stateExpectingHeader,
		source: source,
	}
}

// Decode appends chunk and returns every feature completed by it. An empty
// result means more input is needed.
func (d *Decoder) Decode(chunk []byte) ([]geo.Record, error) {
	if d.state == stateDone {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var records []geo.Record
	for {
		switch d.state {
		case stateExpectingHeader:
			pos, ok := 0, false
			if text, valid := validText(d.buf); valid {
				pos, ok = locateFeaturesArray(text)
			}
			if !ok {
				if len(d.buf) > MaxBufferSize {
					return records, d.parseError(
						fmt.Sprintf("Could not find FeatureCollection header in first %d bytes of data", MaxBufferSize),
						etlerr.ErrHeaderNotFound)
				}
				return records, nil
			}
			d.consume(pos)
			d.state = stateExpectingFeature
			log.Trace().Str("source", d.source).Int("offset", pos).Msg("Features array located")

		case stateExpectingFeature:
			rec, done, ok, err := d.nextFeature()
			if err != nil {
				return records, err
			}
			if done {
				d.finishArray()
				return records, nil
			}
			if !ok {
				return records, nil
			}
			records = append(records, rec)

		case stateExpectingCommaOrClose:
			sep, n := skipSeparator(d.buf)
			switch sep {
			case sepComma:
				d.consume(n)
				d.state = stateExpectingFeature
			case sepClose:
				d.consume(n)
				d.finishArray()
				return records, nil
			case sepOther:
				if len(d.buf) > MaxBufferSize {
					return records, d.parseError(
						fmt.Sprintf("Expected ',' or ']' after feature %d", d.decoded),
						etlerr.ErrMalformedFeature)
				}
				return records, nil
			default:
				return records, nil
			}

		default:
			return records, nil
		}
	}
}

// Finish signals end of input. If the stream stopped right after a complete
// feature, without the closing bracket, that feature is returned; nothing
// else is salvaged.
func (d *Decoder) Finish() ([]geo.Record, error) {
	if d.state != stateExpectingFeature {
		return nil, nil
	}

	rec, _, ok, err := d.nextFeature()
	if err != nil || !ok {
		return nil, err
	}

	return []geo.Record{rec}, nil
}

// Decoded returns the number of features produced so far.
func (d *Decoder) Decoded() int { return d.decoded }

// Done reports whether the closing bracket of the features array was seen.
func (d *Decoder) Done() bool { return d.state == stateDone }

// Buffered returns the number of unconsumed bytes held.
func (d *Decoder) Buffered() int { return len(d.buf) }

// nextFeature tries to take one feature from the buffer front. done is true
// when the array closes instead. On success the feature is consumed and the
// state advances.
func (d *Decoder) nextFeature() (rec geo.Record, done, ok bool, err error) {
	text, valid := validText(d.buf)
	if !valid {
		return rec, false, false, nil
	}

	ws := skipSpace(text)
	if ws == len(text) {
		return rec, false, false, nil
	}

	switch text[ws] {
	case ']':
		d.consume(ws + 1)
		return rec, true, false, nil
	case '{':
	default:
		if len(d.buf) > MaxBufferSize {
			return rec, false, false, d.parseError(
				fmt.Sprintf("Unexpected byte %q where a feature was expected", text[ws]),
				etlerr.ErrMalformedFeature)
		}
		return rec, false, false, nil
	}

	obj, n, complete := extractObject(text[ws:])
	if !complete {
		return rec, false, false, nil
	}

	f, err := decodeFeature(obj)
	if err != nil {
		// A balanced object that does not decode may still be waiting for
		// bytes the scanner cannot judge; only give up past the cap.
		if len(d.buf) > MaxBufferSize {
			return rec, false, false, d.parseError(
				"Failed to parse GeoJSON feature: "+err.Error(), etlerr.ErrMalformedFeature)
		}
		return rec, false, false, nil
	}

	rec, err = f.toRecord()
	if err != nil {
		return rec, false, false, d.parseError(err.Error(), etlerr.ErrMalformedFeature)
	}

	d.consume(ws + n)
	d.decoded++
	d.state = stateExpectingCommaOrClose

	return rec, false, true, nil
}

func (d *Decoder) finishArray() {
	d.state = stateDone
	log.Debug().Str("source", d.source).Int("features", d.decoded).Msg("Features array closed")
}

// consume drops the first n bytes, reusing the backing array.
func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}

func (d *Decoder) parseError(message string, cause error) error {
	return etlerr.Parse(d.source, message, cause)
}
