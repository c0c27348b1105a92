// Package inferbench measures end-to-end latency of image classification over
// a message bus. A dispatcher publishes request envelopes onto an input topic,
// a separately running inference stage classifies each payload and publishes a
// result envelope onto a result topic, and a collector matches results back to
// their requests by correlation id. Because requests and results travel
// independent topic flows, a shared correlation table carries the send
// timestamp across the round trip; a timeout reaper evicts entries whose
// results never arrive, so a lossy bus degrades the measurement instead of
// wedging it.
//
// The facade re-exports the pieces most embedders need: Config selects the
// transport and tuning, NewPipeline wires dispatcher, collector, reaper, and
// sink for one run, and NewStage builds the processing side around any
// Classifier implementation. Pipeline.Run blocks until every dispatched item
// is matched, evicted, or failed to send, then returns a Report with latency
// percentiles, a histogram, and the full accounting.
//
// # Transports
//
// Six bus backends are bundled, selected by Config.PubSubSystem:
//   - channel: In-memory Go channels for tests and single-process runs
//   - kafka: Consumer-group streaming, the reference deployment
//   - rabbitmq: AMQP durable queues
//   - nats: Core NATS, fire and forget
//   - nats-jetstream: NATS with retention and redelivery
//   - aws: AWS SNS/SQS with LocalStack support
//
// Each backend registers itself on import; blank-import the sub-packages you
// deploy with, or transport/transports to pull in all of them.
//
// Duplicate deliveries, results for unknown correlation ids, and results
// arriving after timeout eviction are all discarded silently and counted.
// That tolerance is what lets the same pipeline run unchanged on an
// at-least-once backend and a fire-and-forget one.
package inferbench
