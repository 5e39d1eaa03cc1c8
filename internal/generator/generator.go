// Package generator produces synthetic GPS record events for load tests and
// local development.
package generator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/pkg/event"
	"github.com/jittakal/kafeventavro/pkg/schema"
)

// Event attributes of generated CloudEvents.
const (
	EventTypeGPSRecord = "com.jittakal.gps.record.v1"
	EventSource        = "kafeventavro/generator"
	ContentTypeJSON    = "application/json"
)

//go:embed gpsrecord.avsc
var gpsSchemaJSON []byte

var (
	gpsSchemaOnce sync.Once
	gpsSchema     *schema.Schema
)

// GPSSchemaJSON returns a copy of the GPS record schema text.
func GPSSchemaJSON() []byte {
	return append([]byte(nil), gpsSchemaJSON...)
}

// GPSSchema returns the parsed GPS record schema.
func GPSSchema() *schema.Schema {
	gpsSchemaOnce.Do(func() {
		gpsSchema = schema.MustParse(gpsSchemaJSON)
	})
	return gpsSchema
}

// Config controls generated events.
type Config struct {
	EnvelopeKey string
	SchemaURL   string
	// OptionalPercent is the chance, 0-100, that each optional field is emitted.
	OptionalPercent int
}

// Generator generates fake GPS record events.
type Generator struct {
	config Config
	faker  faker.Faker
	logger *zap.Logger
}

// NewGenerator creates a new event generator.
func NewGenerator(config Config, logger *zap.Logger) *Generator {
	if config.EnvelopeKey == "" {
		config.EnvelopeKey = "gpsrecord"
	}
	return &Generator{
		config: config,
		faker:  faker.New(),
		logger: logger,
	}
}

// Payload returns one GPS record as a JSON-ready map, without the envelope.
func (g *Generator) Payload() map[string]any {
	now := time.Now()
	timing := map[string]any{"capture": now.UnixMilli()}
	rec := map[string]any{
		"accessid":      int64(g.faker.IntBetween(1, 1<<30)),
		"accessnetwork": g.faker.IntBetween(1, 16),
		"beamid":        g.faker.IntBetween(1, 512),
		"sassite":       g.randomSite(),
		"satelliteid":   "SAT-" + g.faker.UUID().V4()[0:8],
		"position":      g.position(),
		"time":          timing,
	}

	if g.chance() {
		rec["accessclass"] = g.faker.IntBetween(0, 9)
	}
	if g.chance() {
		rec["sac"] = g.faker.IntBetween(1, 4096)
	}
	if g.chance() {
		rec["updatereason"] = g.faker.IntBetween(0, 7)
	}
	if g.chance() {
		rec["options"] = map[string]any{"elevationband": g.faker.IntBetween(0, 5)}
	}
	if g.chance() {
		timing["measure"] = now.Add(-time.Duration(g.faker.IntBetween(1, 5000)) * time.Millisecond).UnixMilli()
	}
	return rec
}

func (g *Generator) position() map[string]any {
	pos := map[string]any{
		"latitude":  g.coordinate(90, "N", "S"),
		"longitude": g.coordinate(180, "E", "W"),
	}
	if g.chance() {
		pos["altitude"] = map[string]any{"height": g.faker.Float64(2, 0, 9000)}
	}
	if g.chance() {
		pos["quality"] = map[string]any{
			"hdop": g.faker.Float64(2, 0, 20),
			"sats": g.faker.IntBetween(3, 24),
			"type": g.faker.IntBetween(0, 3),
		}
	}
	return pos
}

func (g *Generator) coordinate(limit int, positive, negative string) map[string]any {
	sense := positive
	if g.faker.IntBetween(0, 1) == 1 {
		sense = negative
	}
	return map[string]any{
		"position": g.faker.Float64(6, 0, limit),
		"sense":    sense,
	}
}

// Body returns one enveloped GPS record body.
func (g *Generator) Body() ([]byte, error) {
	body, err := json.Marshal(map[string]any{g.config.EnvelopeKey: g.Payload()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return body, nil
}

// Event returns one raw event carrying the schema locator header.
func (g *Generator) Event() (*event.Event, error) {
	body, err := g.Body()
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if g.config.SchemaURL != "" {
		headers[event.HeaderSchemaURL] = g.config.SchemaURL
	}
	return &event.Event{Headers: headers, Body: body, Kafka: event.KafkaMetadata{Timestamp: time.Now()}}, nil
}

// Batch returns n raw events.
func (g *Generator) Batch(n int) ([]*event.Event, error) {
	batch := make([]*event.Event, 0, n)
	for i := 0; i < n; i++ {
		e, err := g.Event()
		if err != nil {
			return nil, err
		}
		batch = append(batch, e)
	}
	return batch, nil
}

// CloudEvent wraps one enveloped GPS record in a structured CloudEvent.
func (g *Generator) CloudEvent() cloudevents.Event {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(uuid.New().String())
	ce.SetType(EventTypeGPSRecord)
	ce.SetSource(EventSource)
	ce.SetTime(time.Now())
	if g.config.SchemaURL != "" {
		ce.SetDataSchema(g.config.SchemaURL)
	}

	if err := ce.SetData(ContentTypeJSON, map[string]any{g.config.EnvelopeKey: g.Payload()}); err != nil {
		g.logger.Error("Failed to set event data", zap.Error(err))
	}
	return ce
}

func (g *Generator) chance() bool {
	return g.faker.IntBetween(1, 100) <= g.config.OptionalPercent
}

func (g *Generator) randomSite() string {
	sites := []string{
		"Goonhilly",
		"Fucino",
		"Usingen",
		"Lario",
		"Raisting",
		"Kourou",
		"Perth",
		"Santiago",
	}
	return sites[g.faker.IntBetween(0, len(sites)-1)]
}
