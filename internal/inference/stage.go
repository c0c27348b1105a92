// Package inference implements the processing stage: it consumes request
// envelopes from the input topic, invokes the external classifier, and
// republishes a result envelope carrying the original correlation id. The
// stage usually runs as its own process, talking to the producer side only
// through the bus.
package inference

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/streambench/inferbench/internal/errors"
	"github.com/streambench/inferbench/internal/envelope"
	"github.com/streambench/inferbench/internal/logging"
	"github.com/streambench/inferbench/internal/sink"
)

// Classifier is the external model collaborator. It may be slow and may fail;
// the stage treats it as a black box.
type Classifier interface {
	Classify(ctx context.Context, payload []byte) (string, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, payload []byte) (string, error)

func (f ClassifierFunc) Classify(ctx context.Context, payload []byte) (string, error) {
	return f(ctx, payload)
}

// StaticClassifier always answers with the same label. Useful in tests and
// local examples.
func StaticClassifier(label string) Classifier {
	return ClassifierFunc(func(context.Context, []byte) (string, error) {
		return label, nil
	})
}

// Config wires a Stage.
type Config struct {
	Subscriber  message.Subscriber
	Publisher   message.Publisher
	Classifier  Classifier
	InputTopic  string
	ResultTopic string
	Logger      logging.ServiceLogger
	Metrics     *sink.Metrics
}

// Stage is the request/response transform between input and result topics.
type Stage struct {
	subscriber  message.Subscriber
	publisher   message.Publisher
	classifier  Classifier
	inputTopic  string
	resultTopic string
	logger      logging.ServiceLogger
	metrics     *sink.Metrics
	tracer      trace.Tracer
	messages    <-chan *message.Message
}

// New validates the wiring and constructs a Stage.
func New(cfg Config) (*Stage, error) {
	if cfg.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if cfg.Publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.Classifier == nil {
		return nil, errspkg.ErrClassifierRequired
	}
	if cfg.InputTopic == "" || cfg.ResultTopic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	return &Stage{
		subscriber:  cfg.Subscriber,
		publisher:   cfg.Publisher,
		classifier:  cfg.Classifier,
		inputTopic:  cfg.InputTopic,
		resultTopic: cfg.ResultTopic,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      otel.Tracer("inferbench/inference"),
	}, nil
}

// Subscribe opens the input topic subscription ahead of Run, for transports
// without retention where the subscription must exist before the first
// request is published.
func (s *Stage) Subscribe(ctx context.Context) error {
	if s.messages != nil {
		return nil
	}
	messages, err := s.subscriber.Subscribe(ctx, s.inputTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.inputTopic, err)
	}
	s.messages = messages
	return nil
}

// Run consumes the input topic until ctx is cancelled. Per-message failures
// are logged and dropped; the collector's timeout eviction is the sole
// recovery path for lost results.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.Subscribe(ctx); err != nil {
		return err
	}

	s.logger.Info("inference stage started", logging.LogFields{
		"input_topic":  s.inputTopic,
		"result_topic": s.resultTopic,
	})

	for msg := range s.messages {
		s.handle(ctx, msg)
	}
	return nil
}

func (s *Stage) handle(ctx context.Context, msg *message.Message) {
	// Dropped messages are acked too: redelivery cannot fix a malformed
	// payload or a deterministic classifier failure.
	defer msg.Ack()

	ctx, span := s.tracer.Start(ctx, "inference.handle")
	defer span.End()

	env, err := envelope.FromMessage(msg)
	if err != nil {
		s.metrics.IncDecodeFailure()
		s.logger.Error("dropping malformed envelope", err, logging.LogFields{
			"message_uuid": msg.UUID,
		})
		return
	}
	span.SetAttributes(attribute.String("correlation_id", env.CorrelationID))

	raw, err := env.DecodePayload()
	if err != nil {
		s.metrics.IncDecodeFailure()
		s.logger.Error("dropping envelope with undecodable payload", err, logging.LogFields{
			"correlation_id": env.CorrelationID,
		})
		return
	}

	label, err := s.classifier.Classify(ctx, raw)
	if err != nil {
		s.metrics.IncClassifyFailure()
		s.logger.Error("classification failed, dropping result", err, logging.LogFields{
			"correlation_id": env.CorrelationID,
		})
		return
	}
	span.SetAttributes(attribute.String("label", label))

	result := envelope.NewResult(env.CorrelationID, label)
	out, err := result.ToMessage()
	if err != nil {
		s.logger.Error("failed to serialize result envelope", err, logging.LogFields{
			"correlation_id": env.CorrelationID,
		})
		return
	}

	if err := s.publisher.Publish(s.resultTopic, out); err != nil {
		s.logger.Error("failed to publish result, dropping", err, logging.LogFields{
			"correlation_id": env.CorrelationID,
		})
		return
	}

	s.logger.Debug("published classification result", logging.LogFields{
		"correlation_id": env.CorrelationID,
		"label":          label,
	})
}
