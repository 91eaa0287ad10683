package flowgate

import (
	"github.com/drblury/flowgate/internal/gateway/broker"
	"github.com/drblury/flowgate/internal/gateway/envelope"
	"github.com/drblury/flowgate/internal/gateway/pipeline"
	"github.com/drblury/flowgate/internal/gateway/response"
	"github.com/drblury/flowgate/internal/gateway/routes"
	"github.com/drblury/flowgate/internal/gateway/strategy"
	"github.com/drblury/flowgate/internal/gateway/validation"
	runtimepkg "github.com/drblury/flowgate/internal/runtime"
	configpkg "github.com/drblury/flowgate/internal/runtime/config"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
	idspkg "github.com/drblury/flowgate/internal/runtime/ids"
	jsoncodec "github.com/drblury/flowgate/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/flowgate/internal/runtime/logging"
	metadatapkg "github.com/drblury/flowgate/internal/runtime/metadata"
	"github.com/drblury/flowgate/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Strategies
	Strategy      = strategy.Strategy
	Request       = strategy.Request
	Outputs       = strategy.Outputs
	Payload       = strategy.Payload
	HTTPPayload   = strategy.HTTPPayload
	BridgePayload = strategy.BridgePayload
	HostPools     = strategy.HostPools

	// Pipeline
	Route            = pipeline.Route
	Step             = pipeline.Step
	WaitPolicy       = pipeline.WaitPolicy
	ExtractionPolicy = pipeline.ExtractionPolicy
	Incoming         = pipeline.Incoming
	Pipeline         = pipeline.Pipeline

	// Route files
	RouteDefinition = routes.Definition
	StepDefinition  = routes.StepDefinition

	Response  = response.Response
	Predicate = validation.Predicate

	// Bridge
	Broker          = broker.Broker
	Call            = broker.Call
	EnvelopeHeaders = envelope.Headers
	Envelope        = envelope.Message

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

const (
	Await         = pipeline.Await
	FireAndForget = pipeline.FireAndForget

	ExtractNone      = pipeline.ExtractNone
	ExtractAllParams = pipeline.ExtractAllParams
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewBaseStrategy    = strategy.NewBase
	NewLoggingStrategy = strategy.NewLogging
	NewHTTPStrategy    = strategy.NewHTTP
	NewBridgeStrategy  = strategy.NewBridge
	NewHostPools       = strategy.NewHostPools
	ComposeData        = strategy.Compose

	Success       = response.Success
	Custom        = response.Custom
	InvalidBody   = response.InvalidBody
	Unknown       = response.Unknown
	Timeout       = response.Timeout
	InternalError = response.InternalError

	ParseRoutes     = routes.Parse
	LoadRoutesFile  = routes.LoadFile
	CompileRoutes   = routes.Compile
	NewSchemaLoader = validation.NewLoader
	CompileSchema   = validation.Compile
	ParseExtraction = pipeline.ParseExtraction
	PartitionKey    = broker.PartitionKey

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrRouteNotFound     = errspkg.ErrRouteNotFound
	ErrInvalidRoute      = errspkg.ErrInvalidRoute
	ErrValidationFailed  = errspkg.ErrValidationFailed
	ErrNoStrategy        = errspkg.ErrNoStrategy
	ErrUnknownStrategy   = errspkg.ErrUnknownStrategy
	ErrDuplicateStrategy = errspkg.ErrDuplicateStrategy
	ErrTimeout           = errspkg.ErrTimeout
	ErrPublish           = errspkg.ErrPublish
	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger
	NewWatermillLogger   = loggingpkg.NewWatermillAdapter

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// NewEntryServiceLogger wraps an entry-style logger such as *logrus.Entry.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// Metadata keys set on bridged messages.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyPartitionKey  = metadatapkg.KeyPartitionKey
	MetadataKeyMessageName   = metadatapkg.KeyMessageName
)
