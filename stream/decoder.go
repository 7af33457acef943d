package stream

import (
	"encoding/json"
	stderrors "errors"
)

var (
	// ErrNoRecords is returned by Close when no element validated.
	ErrNoRecords = stderrors.New("stream: no valid records")
	// ErrClosed is returned by Feed after Close.
	ErrClosed = stderrors.New("stream: decoder closed")
)

// Record is one emitted element.
type Record struct {
	// Index is the running sequence number, starting at 0.
	Index int
	Data  map[string]any
	Raw   json.RawMessage
	// Progress is a monotonic estimate between Options.ProgressStart and
	// Options.ProgressEnd.
	Progress float64
}

// ArrayDecoder extracts records from a JSON array delivered in chunks.
// Feed must not be called concurrently.
type ArrayDecoder interface {
	Feed(chunk string) error
	// Close finishes decoding and returns the number of emitted records.
	Close() (int, error)
	Emitted() int
}

// Options configures a BraceDecoder.
type Options struct {
	// Validate decides whether a complete element is emitted. nil accepts
	// every element that parses as an object.
	Validate ValidateFunc
	// OnRecord receives each emitted record. An error stops decoding and
	// is returned from Feed.
	OnRecord func(Record) error
	// Expected is the expected element count used for progress. Zero
	// means unknown.
	Expected      int
	ProgressStart float64
	ProgressEnd   float64
}

// BraceDecoder finds array elements by tracking brace depth and JSON string
// state over newly arrived characters only. Text before the opening '[' is
// skipped, so markdown fences and preambles are tolerated.
type BraceDecoder struct {
	opts Options

	buf      []byte
	pos      int
	start    int
	inArray  bool
	done     bool
	depth    int
	inString bool
	escaped  bool

	emitted  int
	rejected int
	closed   bool
}

// NewBraceDecoder creates a decoder.
func NewBraceDecoder(opts Options) *BraceDecoder {
	if opts.ProgressEnd <= opts.ProgressStart {
		opts.ProgressStart, opts.ProgressEnd = 0, 1
	}
	return &BraceDecoder{opts: opts}
}

// Feed appends chunk and emits every element it completes.
func (d *BraceDecoder) Feed(chunk string) error {
	if d.closed {
		return ErrClosed
	}
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	for d.pos < len(d.buf) {
		c := d.buf[d.pos]
		d.pos++

		if !d.inArray {
			if c == '[' {
				d.inArray = true
			}
			continue
		}
		if d.inString {
			switch {
			case d.escaped:
				d.escaped = false
			case c == '\\':
				d.escaped = true
			case c == '"':
				d.inString = false
			}
			continue
		}

		switch c {
		case '"':
			d.inString = true
		case '{':
			if d.depth == 0 {
				d.start = d.pos - 1
			}
			d.depth++
		case '}':
			if d.depth == 0 {
				continue
			}
			d.depth--
			if d.depth > 0 {
				continue
			}
			err := d.consider(d.buf[d.start:d.pos])
			d.buf = append(d.buf[:0], d.buf[d.pos:]...)
			d.pos, d.start = 0, 0
			if err != nil {
				return err
			}
		case ']':
			if d.depth == 0 {
				d.done = true
				d.buf, d.pos = nil, 0
				return nil
			}
		}
	}

	// Between elements nothing scanned so far is needed again.
	if d.depth == 0 {
		d.buf = d.buf[:0]
		d.pos = 0
	}
	return nil
}

// consider parses and validates one balanced object. Elements that fail
// either step are dropped.
func (d *BraceDecoder) consider(candidate []byte) error {
	var data map[string]any
	if err := json.Unmarshal(candidate, &data); err != nil {
		d.rejected++
		return nil
	}
	if d.opts.Validate != nil {
		if err := d.opts.Validate(data); err != nil {
			d.rejected++
			return nil
		}
	}

	raw := make(json.RawMessage, len(candidate))
	copy(raw, candidate)
	rec := Record{Index: d.emitted, Data: data, Raw: raw}
	d.emitted++
	rec.Progress = d.progress()
	if d.opts.OnRecord != nil {
		return d.opts.OnRecord(rec)
	}
	return nil
}

func (d *BraceDecoder) progress() float64 {
	span := d.opts.ProgressEnd - d.opts.ProgressStart
	if d.opts.Expected <= 0 {
		// Unknown total: approach the end without reaching it.
		return d.opts.ProgressStart + span*float64(d.emitted)/float64(d.emitted+1)
	}
	ratio := min(float64(d.emitted)/float64(d.opts.Expected), 1)
	return d.opts.ProgressStart + ratio*span
}

// Close finishes decoding. An element left incomplete is discarded.
func (d *BraceDecoder) Close() (int, error) {
	d.closed = true
	d.buf = nil
	if d.emitted == 0 {
		return 0, ErrNoRecords
	}
	return d.emitted, nil
}

// Emitted returns the number of records emitted so far.
func (d *BraceDecoder) Emitted() int { return d.emitted }

// Rejected returns the number of complete elements dropped because they
// did not parse or validate.
func (d *BraceDecoder) Rejected() int { return d.rejected }

// DecodeArray runs the decoder once over complete text and returns the
// valid records.
func DecodeArray(text string, validate ValidateFunc) ([]Record, error) {
	var out []Record
	dec := NewBraceDecoder(Options{
		Validate: validate,
		OnRecord: func(r Record) error {
			out = append(out, r)
			return nil
		},
	})
	if err := dec.Feed(text); err != nil {
		return nil, err
	}
	if _, err := dec.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
