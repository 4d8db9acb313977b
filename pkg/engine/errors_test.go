package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPipelineErrorFormat(t *testing.T) {
	err := NewExtensionValidationError("bad configuration", "shell", nil)
	msg := err.Error()
	if !strings.Contains(msg, "error/validation") {
		t.Errorf("message missing severity/category: %q", msg)
	}
	if !strings.Contains(msg, "extension.shell") {
		t.Errorf("message missing context path: %q", msg)
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewSystemError("wrapper", "orchestrator", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
}

func TestErrorClassifiers(t *testing.T) {
	ext := NewExtensionNotFoundError("shell")
	if !IsExtensionError(ext) {
		t.Errorf("expected extension category")
	}
	if IsCritical(ext) {
		t.Errorf("not critical by default")
	}

	crit := NewSystemError("fatal", "system", nil).WithSeverity(SeverityCritical)
	if !IsCritical(crit) {
		t.Errorf("expected critical severity after override")
	}
	if IsExtensionError(errors.New("plain")) {
		t.Errorf("plain errors have no category")
	}
}

func TestErrorHandlerContainsExtensionErrors(t *testing.T) {
	handler := NewErrorHandler(testLogger(t), nil)

	if got := handler.Handle(NewExtensionLoadError("load failed", "shell", nil), "extension.shell"); got != nil {
		t.Errorf("extension error must be contained, got %v", got)
	}
}

func TestErrorHandlerPropagatesNonExtensionErrors(t *testing.T) {
	handler := NewErrorHandler(testLogger(t), nil)

	cfgErr := NewConfigurationError("bad pipeline", nil)
	if got := handler.Handle(cfgErr, "configuration"); got == nil {
		t.Errorf("configuration error must propagate")
	}

	plain := errors.New("disk full")
	if got := handler.Handle(plain, "system"); got == nil {
		t.Errorf("unclassified error must propagate")
	}

	valErr := NewExtensionValidationError("bad configuration", "shell", nil)
	if got := handler.Handle(valErr, "extension.shell"); got == nil {
		t.Errorf("validation error must propagate")
	}
}

func TestErrorHandlerCriticalAlwaysPropagates(t *testing.T) {
	handler := NewErrorHandler(testLogger(t), nil)

	crit := NewExtensionLoadError("corrupted", "shell", nil).WithSeverity(SeverityCritical)
	if got := handler.Handle(crit, "extension.shell"); got == nil {
		t.Errorf("critical extension error must still propagate")
	}
}

func TestErrorHandlerLogsOnlyWarnings(t *testing.T) {
	handler := NewErrorHandler(testLogger(t), nil)

	warn := NewStateError("odd but survivable", nil).WithSeverity(SeverityWarning)
	if got := handler.Handle(warn, "state"); got != nil {
		t.Errorf("warnings are log-only, got %v", got)
	}
	if got := handler.Handle(nil, "state"); got != nil {
		t.Errorf("nil error must stay nil, got %v", got)
	}
}
