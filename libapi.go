package inferbench

import (
	"github.com/streambench/inferbench/internal/codec"
	configpkg "github.com/streambench/inferbench/internal/config"
	correlationpkg "github.com/streambench/inferbench/internal/correlation"
	dispatchpkg "github.com/streambench/inferbench/internal/dispatch"
	envelopepkg "github.com/streambench/inferbench/internal/envelope"
	errspkg "github.com/streambench/inferbench/internal/errors"
	idspkg "github.com/streambench/inferbench/internal/ids"
	inferencepkg "github.com/streambench/inferbench/internal/inference"
	loggingpkg "github.com/streambench/inferbench/internal/logging"
	pipelinepkg "github.com/streambench/inferbench/internal/pipeline"
	sinkpkg "github.com/streambench/inferbench/internal/sink"
	transportpkg "github.com/streambench/inferbench/transport"
)

type (
	// Config and pipeline lifecycle.
	Config               = configpkg.Config
	Pipeline             = pipelinepkg.Pipeline
	PipelineDependencies = pipelinepkg.Dependencies
	Report               = pipelinepkg.Report

	// Wire types.
	Item           = envelopepkg.Item
	Envelope       = envelopepkg.Envelope
	ResultEnvelope = envelopepkg.ResultEnvelope

	// Correlation primitives, exported for embedders that run their own
	// collection loop.
	CorrelationTable   = correlationpkg.Table
	OutstandingRequest = correlationpkg.OutstandingRequest

	// Item sources for the dispatcher.
	ItemSource      = dispatchpkg.ItemSource
	SliceSource     = dispatchpkg.SliceSource
	GeneratorSource = dispatchpkg.GeneratorSource

	// Inference stage.
	Stage          = inferencepkg.Stage
	StageConfig    = inferencepkg.Config
	Classifier     = inferencepkg.Classifier
	ClassifierFunc = inferencepkg.ClassifierFunc

	// Result persistence and aggregation.
	Store           = sinkpkg.Store
	StoreFunc       = sinkpkg.StoreFunc
	MemoryStore     = sinkpkg.MemoryStore
	Record          = sinkpkg.Record
	Summary         = sinkpkg.Summary
	HistogramBucket = sinkpkg.HistogramBucket

	// Logging.
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Transport plumbing.
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewPipeline    = pipelinepkg.New
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.Load

	NewCorrelationTable = correlationpkg.NewTable
	NewCorrelationID    = idspkg.NewCorrelationID

	NewSliceSource     = dispatchpkg.NewSliceSource
	NewGeneratorSource = dispatchpkg.NewGeneratorSource

	NewStage         = inferencepkg.New
	StaticClassifier = inferencepkg.StaticClassifier

	NewMemoryStore = sinkpkg.NewMemoryStore

	NewEnvelope         = envelopepkg.New
	NewResultEnvelope   = envelopepkg.NewResult
	EnvelopeFromMessage = envelopepkg.FromMessage
	ResultFromMessage   = envelopepkg.ResultFromMessage

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter

	Marshal       = codec.Marshal
	MarshalIndent = codec.MarshalIndent
	Unmarshal     = codec.Unmarshal
	Encode        = codec.Encode
	Decode        = codec.Decode

	// Transport registry. Import individual backends for side-effect
	// registration: _ "github.com/streambench/inferbench/transport/kafka"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	ErrTransportRequired  = errspkg.ErrTransportRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrClassifierRequired = errspkg.ErrClassifierRequired
	ErrTableRequired      = errspkg.ErrTableRequired
	ErrSourceRequired     = errspkg.ErrSourceRequired
	ErrSinkRequired       = errspkg.ErrSinkRequired
)

// Metadata keys stamped onto bus messages alongside the JSON body.
const (
	MetadataKeyRunID  = envelopepkg.MetadataKeyRunID
	MetadataKeyItemID = envelopepkg.MetadataKeyItemID
)
