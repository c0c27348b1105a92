package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambench/inferbench/internal/envelope"
	errspkg "github.com/streambench/inferbench/internal/errors"
	"github.com/streambench/inferbench/internal/logging"
)

func testLogger() logging.ServiceLogger {
	return logging.NewWatermillServiceLogger(watermill.NopLogger{})
}

func newStageFixture(t *testing.T, classifier Classifier) (*gochannel.GoChannel, *Stage) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	s, err := New(Config{
		Subscriber:  pubSub,
		Publisher:   pubSub,
		Classifier:  classifier,
		InputTopic:  "input",
		ResultTopic: "results",
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	return pubSub, s
}

func publishEnvelope(t *testing.T, pub message.Publisher, topic, correlationID string, payload []byte) {
	t.Helper()
	msg, err := envelope.New(correlationID, payload, nil).ToMessage()
	require.NoError(t, err)
	require.NoError(t, pub.Publish(topic, msg))
}

func receiveResult(t *testing.T, messages <-chan *message.Message) envelope.ResultEnvelope {
	t.Helper()
	select {
	case msg := <-messages:
		result, err := envelope.ResultFromMessage(msg)
		require.NoError(t, err)
		msg.Ack()
		return result
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
		return envelope.ResultEnvelope{}
	}
}

func TestStageClassifiesAndRepublishes(t *testing.T) {
	var got []byte
	classifier := ClassifierFunc(func(_ context.Context, payload []byte) (string, error) {
		got = payload
		return "airplane", nil
	})
	pubSub, s := newStageFixture(t, classifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := pubSub.Subscribe(ctx, "results")
	require.NoError(t, err)
	require.NoError(t, s.Subscribe(ctx))

	go func() { _ = s.Run(ctx) }()

	publishEnvelope(t, pubSub, "input", "c-1", []byte{0xca, 0xfe})

	result := receiveResult(t, results)
	assert.Equal(t, "c-1", result.CorrelationID)
	assert.Equal(t, "airplane", result.Label)
	assert.NotZero(t, result.ProcessedAtMillis)
	assert.Equal(t, []byte{0xca, 0xfe}, got)
}

func TestStageDropsOnClassifierError(t *testing.T) {
	calls := 0
	classifier := ClassifierFunc(func(_ context.Context, payload []byte) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("model unavailable")
		}
		return "truck", nil
	})
	pubSub, s := newStageFixture(t, classifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := pubSub.Subscribe(ctx, "results")
	require.NoError(t, err)
	require.NoError(t, s.Subscribe(ctx))

	go func() { _ = s.Run(ctx) }()

	// The first item fails classification and produces no result; the loop
	// keeps consuming.
	publishEnvelope(t, pubSub, "input", "c-1", []byte{1})
	publishEnvelope(t, pubSub, "input", "c-2", []byte{2})

	result := receiveResult(t, results)
	assert.Equal(t, "c-2", result.CorrelationID)
	assert.Equal(t, "truck", result.Label)
	assert.Equal(t, 2, calls)
}

func TestStageDropsMalformedEnvelope(t *testing.T) {
	pubSub, s := newStageFixture(t, StaticClassifier("ship"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := pubSub.Subscribe(ctx, "results")
	require.NoError(t, err)
	require.NoError(t, s.Subscribe(ctx))

	go func() { _ = s.Run(ctx) }()

	require.NoError(t, pubSub.Publish("input", message.NewMessage("bad", []byte("not json"))))
	publishEnvelope(t, pubSub, "input", "c-1", []byte{7})

	result := receiveResult(t, results)
	assert.Equal(t, "c-1", result.CorrelationID)
}

func TestStageDropsUndecodablePayload(t *testing.T) {
	pubSub, s := newStageFixture(t, StaticClassifier("ship"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := pubSub.Subscribe(ctx, "results")
	require.NoError(t, err)
	require.NoError(t, s.Subscribe(ctx))

	go func() { _ = s.Run(ctx) }()

	// Valid JSON but the payload field is not base64.
	bad := message.NewMessage("c-0", []byte(`{"correlation_id":"c-0","payload":"%%%","sent_at_ms":1}`))
	require.NoError(t, pubSub.Publish("input", bad))
	publishEnvelope(t, pubSub, "input", "c-1", []byte{7})

	result := receiveResult(t, results)
	assert.Equal(t, "c-1", result.CorrelationID)
}

func TestStaticClassifier(t *testing.T) {
	label, err := StaticClassifier("frog").Classify(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "frog", label)
}

func TestNewValidation(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	classifier := StaticClassifier("cat")
	logger := testLogger()

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing subscriber", Config{Publisher: pubSub, Classifier: classifier, InputTopic: "in", ResultTopic: "out", Logger: logger}, errspkg.ErrSubscriberRequired},
		{"missing publisher", Config{Subscriber: pubSub, Classifier: classifier, InputTopic: "in", ResultTopic: "out", Logger: logger}, errspkg.ErrPublisherRequired},
		{"missing classifier", Config{Subscriber: pubSub, Publisher: pubSub, InputTopic: "in", ResultTopic: "out", Logger: logger}, errspkg.ErrClassifierRequired},
		{"missing input topic", Config{Subscriber: pubSub, Publisher: pubSub, Classifier: classifier, ResultTopic: "out", Logger: logger}, errspkg.ErrTopicRequired},
		{"missing result topic", Config{Subscriber: pubSub, Publisher: pubSub, Classifier: classifier, InputTopic: "in", Logger: logger}, errspkg.ErrTopicRequired},
		{"missing logger", Config{Subscriber: pubSub, Publisher: pubSub, Classifier: classifier, InputTopic: "in", ResultTopic: "out"}, errspkg.ErrLoggerRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
