package embedding

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	base := errors.New("connection refused")
	retryable := &RetryableError{Err: base}

	if !Retryable(retryable) {
		t.Error("RetryableError should be retryable")
	}
	if !Retryable(fmt.Errorf("derive: %w", retryable)) {
		t.Error("wrapped RetryableError should stay retryable")
	}
	if Retryable(base) {
		t.Error("plain error should not be retryable")
	}
	if Retryable(nil) {
		t.Error("nil should not be retryable")
	}

	if !errors.Is(retryable, base) {
		t.Error("RetryableError must unwrap to its cause")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", "")
	if c.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions: got %d, want %d", c.Dimensions(), DefaultDimensions)
	}
	if c.model != DefaultModel {
		t.Errorf("Model: got %s, want %s", c.model, DefaultModel)
	}

	c = NewClient("http://localhost:8080/v1", "key", WithModel("all-minilm"), WithDimensions(384))
	if c.Dimensions() != 384 || c.model != "all-minilm" {
		t.Errorf("Options not applied: %+v", c)
	}
}
