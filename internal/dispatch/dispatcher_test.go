package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambench/inferbench/internal/correlation"
	"github.com/streambench/inferbench/internal/envelope"
	errspkg "github.com/streambench/inferbench/internal/errors"
	"github.com/streambench/inferbench/internal/logging"
)

func testLogger() logging.ServiceLogger {
	return logging.NewWatermillServiceLogger(watermill.NopLogger{})
}

func testItems(n int) []envelope.Item {
	items := make([]envelope.Item, n)
	for i := range items {
		items[i] = envelope.Item{
			ID:      fmt.Sprintf("item-%d", i),
			Payload: []byte{byte(i)},
			Truth:   "cat",
		}
	}
	return items
}

func TestDispatcherPublishesAndTracks(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, "input")
	require.NoError(t, err)

	table := correlation.NewTable()
	d, err := New(Config{
		Publisher: pubSub,
		Table:     table,
		Source:    NewSliceSource(testItems(5)),
		Topic:     "input",
		RunID:     "run-1",
		Logger:    testLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, int64(5), d.Dispatched())
	assert.Equal(t, 5, table.Len())

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		select {
		case msg := <-messages:
			env, err := envelope.FromMessage(msg)
			require.NoError(t, err)
			assert.False(t, seen[env.CorrelationID], "correlation ids must be unique")
			seen[env.CorrelationID] = true
			assert.Equal(t, "run-1", msg.Metadata.Get(envelope.MetadataKeyRunID))

			_, ok := table.Remove(env.CorrelationID)
			assert.True(t, ok, "every published id has a table entry")
			msg.Ack()
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatched message")
		}
	}
}

// tablePeekingPublisher asserts the correlation entry exists by the time the
// publish happens.
type tablePeekingPublisher struct {
	table *correlation.Table
	t     *testing.T
}

func (p *tablePeekingPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		env, err := envelope.FromMessage(msg)
		require.NoError(p.t, err)
		_, ok := p.table.Remove(env.CorrelationID)
		assert.True(p.t, ok, "table entry must be recorded before publish")
		// Reinsert so dispatcher-side accounting still finds it.
		p.table.Insert(correlation.OutstandingRequest{CorrelationID: env.CorrelationID, SentAt: time.Now()})
	}
	return nil
}

func (p *tablePeekingPublisher) Close() error { return nil }

func TestDispatcherInsertsBeforePublish(t *testing.T) {
	table := correlation.NewTable()
	d, err := New(Config{
		Publisher: &tablePeekingPublisher{table: table, t: t},
		Table:     table,
		Source:    NewSliceSource(testItems(3)),
		Topic:     "input",
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, int64(3), d.Dispatched())
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error {
	return errors.New("broker unreachable")
}

func (failingPublisher) Close() error { return nil }

func TestDispatcherSendFailureAccounting(t *testing.T) {
	table := correlation.NewTable()
	var failures int
	d, err := New(Config{
		Publisher:     failingPublisher{},
		Table:         table,
		Source:        NewSliceSource(testItems(4)),
		Topic:         "input",
		Logger:        testLogger(),
		OnSendFailure: func(envelope.Item) { failures++ },
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, int64(0), d.Dispatched())
	assert.Equal(t, int64(4), d.SendFailed())
	assert.Equal(t, 4, failures)
	assert.Equal(t, 0, table.Len(), "failed sends must not leak table entries")
}

func TestDispatcherLimit(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	source := NewGeneratorSource(0, func(i int) envelope.Item {
		return envelope.Item{ID: fmt.Sprintf("g-%d", i)}
	})

	d, err := New(Config{
		Publisher: pubSub,
		Table:     correlation.NewTable(),
		Source:    source,
		Topic:     "input",
		Limit:     7,
		Logger:    testLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, int64(7), d.Dispatched())
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	d, err := New(Config{
		Publisher: pubSub,
		Table:     correlation.NewTable(),
		Source: NewGeneratorSource(0, func(i int) envelope.Item {
			return envelope.Item{ID: fmt.Sprintf("g-%d", i)}
		}),
		Topic:    "input",
		Interval: 10 * time.Millisecond,
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, d.Run(ctx))
	assert.Greater(t, d.Dispatched(), int64(0))
	assert.Less(t, d.Dispatched(), int64(20), "pacing must bound the send rate")
}

func TestSliceSourceExhaustion(t *testing.T) {
	source := NewSliceSource(testItems(2))
	ctx := context.Background()

	_, ok := source.Next(ctx)
	assert.True(t, ok)
	_, ok = source.Next(ctx)
	assert.True(t, ok)
	_, ok = source.Next(ctx)
	assert.False(t, ok)
}

func TestNewValidation(t *testing.T) {
	table := correlation.NewTable()
	source := NewSliceSource(nil)
	pub := failingPublisher{}
	logger := testLogger()

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing publisher", Config{Table: table, Source: source, Topic: "t", Logger: logger}, errspkg.ErrPublisherRequired},
		{"missing table", Config{Publisher: pub, Source: source, Topic: "t", Logger: logger}, errspkg.ErrTableRequired},
		{"missing source", Config{Publisher: pub, Table: table, Topic: "t", Logger: logger}, errspkg.ErrSourceRequired},
		{"missing topic", Config{Publisher: pub, Table: table, Source: source, Logger: logger}, errspkg.ErrTopicRequired},
		{"missing logger", Config{Publisher: pub, Table: table, Source: source, Topic: "t"}, errspkg.ErrLoggerRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
