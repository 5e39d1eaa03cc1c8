package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/collapse"
	"github.com/jittakal/kafeventavro/internal/compress"
	"github.com/jittakal/kafeventavro/internal/encoder"
	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/internal/generator"
	"github.com/jittakal/kafeventavro/internal/schema"
	"github.com/jittakal/kafeventavro/pkg/event"
)

// maxLineBytes bounds one JSON body read by the collapse command.
const maxLineBytes = 16 * 1024 * 1024

type collapseOptions struct {
	Locator     string
	EnvelopeKey string
	Codec       string
	BlockLength int
	Compression string
	SkipInvalid bool
	HTTPTimeout time.Duration
	Output      string
	Inputs      []string
}

// collapseFiles reads one JSON body per line from the inputs and writes a
// single container. Nothing is written when no record survives.
func collapseFiles(ctx context.Context, opts collapseOptions, stdin io.Reader, stdout io.Writer, logger *zap.Logger) error {
	codec, err := compress.GetCodec(opts.Compression)
	if err != nil {
		return err
	}
	enc, err := encoder.NewAvroEncoder(encoder.AvroConfig{Codec: opts.Codec, BlockLength: opts.BlockLength})
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	batch, err := readEvents(opts.Inputs, stdin)
	if err != nil {
		return err
	}

	cfg := collapse.Config{
		EnvelopeKey:    opts.EnvelopeKey,
		DefaultLocator: opts.Locator,
		FailurePolicy:  collapse.PolicyAbort,
	}
	rejected := &rejectLog{logger: logger}
	collapseOpts := []collapse.Option{collapse.WithLogger(logger)}
	if opts.SkipInvalid {
		cfg.FailurePolicy = collapse.PolicySkip
		collapseOpts = append(collapseOpts, collapse.WithRejecter(rejected))
	}

	cache := schema.NewCache(schema.NewMultiLoader(opts.HTTPTimeout), logger, nil)
	c, err := collapse.New(cfg, cache, enc, collapseOpts...)
	if err != nil {
		return err
	}

	units, err := c.Collapse(ctx, batch, opts.Locator, opts.EnvelopeKey)
	if err != nil {
		return fmt.Errorf("collapse failed (%s): %w", apperrors.Kind(err), err)
	}
	if len(units) == 0 {
		logger.Warn("no records to write", zap.Int("read", len(batch)), zap.Int("rejected", rejected.count))
		return nil
	}

	data, err := codec.Compress(units[0].Body)
	if err != nil {
		return fmt.Errorf("failed to compress container: %w", err)
	}
	if err := writeOutput(opts.Output, data, stdout); err != nil {
		return err
	}

	logger.Info("container written",
		zap.String("output", opts.Output),
		zap.Int("read", len(batch)),
		zap.Int("rejected", rejected.count),
		zap.Int("bytes", len(data)),
		zap.String("codec", enc.Codec()),
	)
	return nil
}

// readEvents turns every non-blank line into an event. The topic is the
// input name and the offset its line number.
func readEvents(inputs []string, stdin io.Reader) ([]*event.Event, error) {
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	var batch []*event.Event
	for _, name := range inputs {
		r := stdin
		if name != "-" {
			f, err := os.Open(name)
			if err != nil {
				return nil, fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()
			r = f
		}

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		var line int64
		for scanner.Scan() {
			line++
			body := bytes.TrimSpace(scanner.Bytes())
			if len(body) == 0 {
				continue
			}
			batch = append(batch, &event.Event{
				Headers: map[string]string{},
				Body:    bytes.Clone(body),
				Kafka:   event.KafkaMetadata{Topic: name, Offset: line},
			})
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	return batch, nil
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// rejectLog logs records dropped by --skip-invalid.
type rejectLog struct {
	logger *zap.Logger
	count  int
}

func (r *rejectLog) Reject(_ context.Context, e *event.Event, cause error) error {
	r.count++
	r.logger.Warn("skipped record",
		zap.String("input", e.Kafka.Topic),
		zap.Int64("line", e.Kafka.Offset),
		zap.String("kind", apperrors.Kind(cause)),
		zap.Error(cause),
	)
	return nil
}

type inspectOptions struct {
	Path       string
	Limit      int
	SchemaOnly bool
}

// inspectFile prints a summary of the container at opts.Path followed by its
// records as JSON lines. Whole-file compression is detected by extension.
func inspectFile(opts inspectOptions, stdout io.Writer) error {
	data, err := os.ReadFile(opts.Path)
	if err != nil {
		return fmt.Errorf("failed to read container: %w", err)
	}
	codec := compress.ForPath(opts.Path)
	if data, err = codec.Decompress(data); err != nil {
		return fmt.Errorf("failed to decompress %s container: %w", codec.Name(), err)
	}

	c, err := encoder.Decode(data)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(stdout)
	defer w.Flush()

	if opts.SchemaOnly {
		_, err := fmt.Fprintln(w, c.Schema.JSON())
		return err
	}

	fmt.Fprintf(w, "# schema: %s\n", c.Schema.Name())
	fmt.Fprintf(w, "# fingerprint: %s\n", c.Schema.FingerprintHex())
	fmt.Fprintf(w, "# codec: %s\n", c.Codec)
	fmt.Fprintf(w, "# records: %d\n", len(c.Records))

	out := json.NewEncoder(w)
	for i, rec := range c.Records {
		if opts.Limit > 0 && i >= opts.Limit {
			break
		}
		if err := out.Encode(rec.Map()); err != nil {
			return fmt.Errorf("failed to print record %d: %w", i, err)
		}
	}
	return nil
}

type generateOptions struct {
	Count           int
	EnvelopeKey     string
	SchemaURL       string
	OptionalPercent int
	CloudEvents     bool
	SchemaOut       string
}

// generateEvents writes opts.Count synthetic GPS bodies, one per line.
func generateEvents(opts generateOptions, stdout io.Writer, logger *zap.Logger) error {
	if opts.SchemaOut != "" {
		if err := os.WriteFile(opts.SchemaOut, generator.GPSSchemaJSON(), 0o644); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
	}

	g := generator.NewGenerator(generator.Config{
		EnvelopeKey:     opts.EnvelopeKey,
		SchemaURL:       opts.SchemaURL,
		OptionalPercent: opts.OptionalPercent,
	}, logger)

	w := bufio.NewWriter(stdout)
	for i := 0; i < opts.Count; i++ {
		var line []byte
		var err error
		if opts.CloudEvents {
			line, err = json.Marshal(g.CloudEvent())
		} else {
			line, err = g.Body()
		}
		if err != nil {
			return fmt.Errorf("failed to generate event %d: %w", i, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}

	logger.Debug("events generated", zap.Int("count", opts.Count), zap.Bool("cloudevents", opts.CloudEvents))
	return nil
}
