package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "certledger/pkg/platform/audit"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		p.records = append(p.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestAppendProducesKeyedJSON(t *testing.T) {
	producer := &recordingProducer{}
	store := New(producer, "certificate-audit")

	err := store.Append(context.Background(), audit.Event{
		Action:        string(audit.EventCertificateIssued),
		CertificateID: "7",
		ActorID:       "registrar",
		Decision:      "issued",
		Timestamp:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "certificate-audit", rec.Topic)
	assert.Equal(t, []byte("7"), rec.Key)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Value, &body))
	assert.Equal(t, "compliance", body["category"])
	assert.Equal(t, "certificate_issued", body["action"])
	assert.Equal(t, "2024-01-15T00:00:00Z", body["timestamp"])
	assert.NotEmpty(t, body["id"])
}

func TestAppendSurfacesProduceError(t *testing.T) {
	store := New(&recordingProducer{err: errors.New("broker down")}, "certificate-audit")
	err := store.Append(context.Background(), audit.Event{Action: string(audit.EventCertificateVerified)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
