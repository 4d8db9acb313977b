package engine

import (
	"errors"
	"fmt"

	"github.com/pipewright/pipewright/pkg/telemetry"
)

// Severity represents the severity of a pipeline error for the propagation
// policy.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category classifies pipeline errors by subsystem.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryExtension     Category = "extension"
	CategoryResource      Category = "resource"
	CategoryState         Category = "state"
	CategorySystem        Category = "system"
	CategoryValidation    Category = "validation"
)

// PipelineError represents a classified error with context.
type PipelineError struct {
	// Severity drives the propagation policy.
	Severity Severity `json:"severity"`

	// Category is the error classification by subsystem.
	Category Category `json:"category"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Context is a dotted path locating the error, such as
	// "extension.build" or "extension.build.cleanup".
	Context string `json:"context,omitempty"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("[%s/%s] %s", e.Severity, e.Category, e.Message)
	if e.Context != "" {
		msg = fmt.Sprintf("[%s/%s] %s: %s", e.Severity, e.Category, e.Context, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Severity == t.Severity && e.Category == t.Category
}

// WithDetail adds a detail field to the error context.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithContext sets the context path on the error.
func (e *PipelineError) WithContext(context string) *PipelineError {
	e.Context = context
	return e
}

// WithSeverity overrides the error severity.
func (e *PipelineError) WithSeverity(severity Severity) *PipelineError {
	e.Severity = severity
	return e
}

// NewConfigurationError creates an error in the pipeline configuration.
func NewConfigurationError(message string, err error) *PipelineError {
	return &PipelineError{
		Severity: SeverityError,
		Category: CategoryConfiguration,
		Message:  message,
		Context:  "configuration",
		Err:      err,
	}
}

// NewExtensionNotFoundError signals that an extension is absent from the
// discovered set.
func NewExtensionNotFoundError(name string) *PipelineError {
	return &PipelineError{
		Severity: SeverityError,
		Category: CategoryExtension,
		Message:  fmt.Sprintf("extension not found: %s", name),
		Context:  "extension." + name,
	}
}

// NewExtensionLoadError signals a failure to load an extension.
func NewExtensionLoadError(message, name string, details map[string]interface{}) *PipelineError {
	return &PipelineError{
		Severity: SeverityError,
		Category: CategoryExtension,
		Message:  message,
		Context:  "extension." + name,
		Details:  details,
	}
}

// NewExtensionValidationError signals that an extension or its configuration
// failed validation. Validation errors are never contained: a pipeline must
// not keep running on a configuration it could not validate.
func NewExtensionValidationError(message, name string, details map[string]interface{}) *PipelineError {
	return &PipelineError{
		Severity: SeverityError,
		Category: CategoryValidation,
		Message:  message,
		Context:  "extension." + name,
		Details:  details,
	}
}

// NewStateError signals an error in pipeline state management.
func NewStateError(message string, details map[string]interface{}) *PipelineError {
	return &PipelineError{
		Severity: SeverityError,
		Category: CategoryState,
		Message:  message,
		Context:  "state",
		Details:  details,
	}
}

// NewSystemError wraps an unclassified error.
func NewSystemError(message, context string, err error) *PipelineError {
	return &PipelineError{
		Severity: SeverityError,
		Category: CategorySystem,
		Message:  message,
		Context:  context,
		Err:      err,
	}
}

// IsExtensionError returns true if the error belongs to the extension
// category.
func IsExtensionError(err error) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Category == CategoryExtension
	}
	return false
}

// IsCritical returns true if the error carries critical severity.
func IsCritical(err error) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Severity == SeverityCritical
	}
	return false
}

// ErrorHandler applies the propagation policy: critical errors always
// propagate after logging; error-severity errors propagate unless they belong
// to the extension category (one bad plugin cannot abort the whole run);
// warnings and infos are logged only.
type ErrorHandler struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewErrorHandler creates an error handler logging through the given logger.
// Metrics may be nil.
func NewErrorHandler(logger *telemetry.Logger, metrics *telemetry.Metrics) *ErrorHandler {
	return &ErrorHandler{logger: logger, metrics: metrics}
}

// Handle logs the error and returns it when the policy says it must
// propagate, or nil when it was contained.
func (h *ErrorHandler) Handle(err error, context string) error {
	if err == nil {
		return nil
	}

	var perr *PipelineError
	if !errors.As(err, &perr) {
		perr = NewSystemError(err.Error(), context, err)
	}
	if perr.Context == "" {
		perr.Context = context
	}

	h.metrics.ErrorHandled(string(perr.Severity), string(perr.Category))

	logger := h.logger.WithField("context", perr.Context)
	if len(perr.Details) > 0 {
		logger = logger.WithField("details", perr.Details)
	}
	if perr.Err != nil {
		logger = logger.WithError(perr.Err)
	}

	msg := fmt.Sprintf("Error in %s: %s", perr.Context, perr.Message)
	switch perr.Severity {
	case SeverityCritical:
		logger.Critical(msg)
		return err
	case SeverityError:
		logger.Error(msg)
		if perr.Category != CategoryExtension {
			return err
		}
		return nil
	case SeverityWarning:
		logger.Warn(msg)
		return nil
	default:
		logger.Info(msg)
		return nil
	}
}
