// Package encoder writes and reads Apache Avro Object Container Files.
//
// A container embeds its writer schema once in the header followed by data
// blocks of binary-encoded records:
//
//	enc, err := encoder.NewAvroEncoder(encoder.AvroConfig{Codec: "deflate"})
//	w, err := enc.Open(s)
//	for _, r := range records {
//	    if err := w.Append(r); err != nil {
//	        return err
//	    }
//	}
//	blob, err := w.Finish()
//
// Records are validated against the schema when appended, so an invalid
// record never reaches the container. Decode reads a container back into
// its schema and typed records.
package encoder
