// Package fixtures generates realistic raw timeline records for tests and
// for seeding a mock data store.
package fixtures

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/penwyp/go-station-timeline/internal/core/model"
)

// Record file formats the generator can write.
const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
)

// RecordGenerator produces records in every shape the normalizer accepts:
// mixed field aliases, timestamp encodings and optional ids. The same seed
// yields the same records.
type RecordGenerator struct {
	faker *gofakeit.Faker
}

func NewRecordGenerator(seed int64) *RecordGenerator {
	return &RecordGenerator{faker: gofakeit.New(seed)}
}

// Record builds the i-th record of scope at the given instant. The shape
// rotates through telemetry, task, incident, agent and communication.
func (g *RecordGenerator) Record(scope string, i int, at time.Time) model.RawRecord {
	at = at.UTC()
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("station-timeline/%s/%d", scope, i))).String()

	switch i % 5 {
	case 0:
		return model.RawRecord{
			"id":        id,
			"type":      model.TypeTelemetry,
			"timestamp": at.Format(time.RFC3339),
			"source":    map[string]interface{}{"name": "Sensor " + g.faker.Word()},
			"payload": map[string]interface{}{
				"temperature": round(g.faker.Float64Range(-10, 40)),
				"humidity":    round(g.faker.Float64Range(10, 95)),
				"battery":     g.faker.Number(5, 100),
			},
		}
	case 1:
		return model.RawRecord{
			"uuid":        id,
			"event_type":  model.TypeTask,
			"event_time":  at.UnixMilli(),
			"title":       g.faker.HipsterSentence(4),
			"description": "Assigned to " + g.faker.Name(),
			"data": map[string]interface{}{
				"priority": g.faker.RandomString([]string{"low", "normal", "high"}),
				"due":      at.Add(48 * time.Hour).Format("2006-01-02"),
			},
		}
	case 2:
		// Incidents from legacy feeds carry no identifier.
		return model.RawRecord{
			"kind":       model.TypeIncident,
			"created_at": at.Format("2006-01-02 15:04:05"),
			"name":       g.faker.BuzzWord() + " fault",
			"status":     g.faker.RandomString([]string{"open", "acknowledged", "resolved"}),
			"details": map[string]interface{}{
				"severity": g.faker.Number(1, 5),
				"zone":     g.faker.Color(),
			},
		}
	case 3:
		return model.RawRecord{
			"event_id":    g.faker.Number(1000, 999999),
			"type":        model.TypeAgent + ".heartbeat",
			"occurred_at": at.Format(model.ISOLayout),
			"summary":     "Agent " + g.faker.FirstName() + " checked in",
			"metadata": map[string]interface{}{
				"version": g.faker.AppVersion(),
				"host":    g.faker.DomainName(),
			},
		}
	default:
		return model.RawRecord{
			"reference":   "msg-" + id[:8],
			"type":        model.TypeCommunication,
			"received_at": at.Format(time.RFC1123Z),
			"title":       "Message from " + g.faker.Name(),
			"source":      "radio",
			"context": map[string]interface{}{
				"channel": g.faker.Number(1, 16),
			},
		}
	}
}

// Records builds n records for scope, the first at start and each next one
// step earlier.
func (g *RecordGenerator) Records(scope string, n int, start time.Time, step time.Duration) []model.RawRecord {
	records := make([]model.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, g.Record(scope, i, start.Add(-time.Duration(i)*step)))
	}
	return records
}

// WriteScope writes records to <dir>/<scope>-timeline.<format>. JSON files
// wrap the list in an "entries" envelope.
func WriteScope(dir, scope, format string, records []model.RawRecord) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	var data []byte
	switch format {
	case FormatJSONL:
		for _, r := range records {
			line, err := sonic.Marshal(r)
			if err != nil {
				return "", err
			}
			data = append(data, line...)
			data = append(data, '\n')
		}
	case FormatJSON:
		body, err := sonic.ConfigDefault.MarshalIndent(map[string]interface{}{"entries": records}, "", "  ")
		if err != nil {
			return "", err
		}
		data = body
	default:
		return "", fmt.Errorf("unsupported fixture format %q", format)
	}

	path := filepath.Join(dir, scope+"-timeline."+format)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func round(f float64) float64 {
	return math.Round(f*10) / 10
}
