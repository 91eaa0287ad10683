package errors

import sterrors "errors"

// Routing and pipeline errors.
var (
	ErrRouteNotFound     = sterrors.New("flowgate: unknown request")
	ErrInvalidRoute      = sterrors.New("flowgate: invalid route definition")
	ErrValidationFailed  = sterrors.New("flowgate: request validation failed")
	ErrNoStrategy        = sterrors.New("flowgate: no strategy configured for route")
	ErrUnknownStrategy   = sterrors.New("flowgate: strategy is not registered")
	ErrDuplicateStrategy = sterrors.New("flowgate: strategy registered twice")
	ErrStrategyRequired  = sterrors.New("flowgate: strategy is required")
	ErrStrategyNameEmpty = sterrors.New("flowgate: strategy name is required")
)

// Bridge errors.
var (
	ErrTimeout           = sterrors.New("flowgate: timed out waiting for reply")
	ErrPublish           = sterrors.New("flowgate: failed to publish message")
	ErrPublisherRequired = sterrors.New("flowgate: publisher is required")
	ErrTopicRequired     = sterrors.New("flowgate: topic is required")
)

// Service construction errors.
var (
	ErrConfigRequired     = sterrors.New("flowgate: config is required")
	ErrLoggerRequired     = sterrors.New("flowgate: logger is required")
	ErrSubscriberRequired = sterrors.New("flowgate: subscriber is required")
)
