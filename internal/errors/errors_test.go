package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(NotFound, "chunk 42 does not exist", nil)
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected code in message, got: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "chunk 42 does not exist") {
		t.Errorf("expected message, got: %s", err.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New(StorageFailure, "commit failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected cause in message, got: %s", err.Error())
	}
}

func TestIsCode(t *testing.T) {
	err := New(AlreadyProcessing, "pass in flight", nil)
	wrapped := fmt.Errorf("process: %w", err)

	if !IsCode(wrapped, AlreadyProcessing) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(wrapped, NotFound) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(stderrors.New("plain"), NotFound) {
		t.Error("IsCode matched a plain error")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(Conflict, "dup", nil)); got != Conflict {
		t.Errorf("CodeOf = %s, want %s", got, Conflict)
	}
	if got := CodeOf(stderrors.New("plain")); got != StorageFailure {
		t.Errorf("CodeOf(plain) = %s, want %s", got, StorageFailure)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(InvalidParent, "parent belongs to another project", nil).
		WithDetails(map[string]interface{}{"parentId": int64(9)})
	if err.Details["parentId"] != int64(9) {
		t.Errorf("details not attached: %v", err.Details)
	}
}
