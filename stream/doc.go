// Package stream turns a growing text stream shaped like a JSON array of
// objects into validated records, emitting each one as soon as its closing
// brace arrives.
//
// Emission happens in two phases: a brace-depth scan decides an element is
// syntactically complete, then a ValidateFunc decides it is usable. Only
// elements passing both are emitted. Callers depend on the ArrayDecoder
// interface so the scanner can be swapped for a full tokenizer.
//
//	dec := stream.NewBraceDecoder(stream.Options{
//	    Validate: stream.RequireFields("title", "body"),
//	    Expected: 5,
//	    OnRecord: func(r stream.Record) error { ...; return nil },
//	})
//	for chunk := range chunks {
//	    if err := dec.Feed(chunk); err != nil { ... }
//	}
//	n, err := dec.Close()
package stream
