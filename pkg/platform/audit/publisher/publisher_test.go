package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "certledger/pkg/platform/audit"
	"certledger/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action:        string(audit.EventCertificateIssued),
		CertificateID: "1",
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action:        string(audit.EventCertificateVerified),
		CertificateID: "2",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), "2")
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Action:        string(audit.EventCertificateVerified),
			CertificateID: "3",
		})
		require.NoError(t, err)
	}

	require.NoError(t, pub.Close())

	events, err := store.ListByCertificate(context.Background(), "3")
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisher_CloseIsIdempotent(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	assert.NoError(t, pub.Close())
	assert.NoError(t, pub.Close())
}

func TestPublisher_ConcurrentEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				Action:        string(audit.EventCertificateVerified),
				CertificateID: "4",
			})
		}()
	}
	wg.Wait()

	events, err := store.ListByCertificate(context.Background(), "4")
	require.NoError(t, err)
	assert.Len(t, events, 50)
}

type appendOnly struct{ audit.Store }

func TestPublisher_ListUnsupported(t *testing.T) {
	pub := NewPublisher(appendOnly{memory.NewInMemoryStore()})
	_, err := pub.List(context.Background(), "1")
	assert.ErrorIs(t, err, ErrListUnsupported)
}
