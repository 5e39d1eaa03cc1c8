// Package encoder defines the container encoding contract: open a container
// for one schema, append typed records, finish to obtain the bytes.
package encoder

import (
	"github.com/jittakal/kafeventavro/pkg/record"
	"github.com/jittakal/kafeventavro/pkg/schema"
)

// Encoder opens containers bound to a single schema.
type Encoder interface {
	// Open starts a new container whose header embeds s.
	Open(s *schema.Schema) (ContainerWriter, error)

	// FileExtension returns the file extension of produced containers.
	FileExtension() string
}

// ContainerWriter accumulates records of one schema into one container.
// A writer is not safe for concurrent use.
type ContainerWriter interface {
	// Append adds a record. A rejected record is not written and the writer
	// remains usable.
	Append(r *record.Record) error

	// Finish completes the container and returns its bytes. The writer
	// cannot be used afterwards.
	Finish() ([]byte, error)

	// Count returns the number of appended records.
	Count() int
}
