package errors

import sterrors "errors"

var (
	ErrTransportRequired  = sterrors.New("inferbench: bus transport is required")
	ErrPublisherRequired  = sterrors.New("inferbench: publisher is required")
	ErrSubscriberRequired = sterrors.New("inferbench: subscriber is required")
	ErrTopicRequired      = sterrors.New("inferbench: topic is required")
	ErrConfigRequired     = sterrors.New("inferbench: config is required")
	ErrLoggerRequired     = sterrors.New("inferbench: logger is required")
	ErrClassifierRequired = sterrors.New("inferbench: classifier is required")
	ErrTableRequired      = sterrors.New("inferbench: correlation table is required")
	ErrSourceRequired     = sterrors.New("inferbench: item source is required")
	ErrSinkRequired       = sterrors.New("inferbench: result sink is required")
)
