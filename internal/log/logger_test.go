package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithComponent(t *testing.T) {
	l := WithComponent("loader")
	assert.NotNil(t, l)
}

func TestRunIDRoundTrip(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-123")
	assert.Equal(t, "run-123", RunIDFromContext(ctx))
	assert.Equal(t, "", RunIDFromContext(context.Background()))
}

func TestWithComponentFromContextNilSafe(t *testing.T) {
	//nolint:staticcheck // exercising nil context handling on purpose
	l := WithComponentFromContext(nil, "pipeline")
	assert.NotNil(t, l)
}
