package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestFromContextRoundTrip(t *testing.T) {
	scoped := zap.NewNop().With(zap.String("request_id", "abc"))
	ctx := WithContext(context.Background(), scoped)

	assert.Same(t, scoped, FromContext(ctx))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	got := FromContext(context.Background())

	assert.NotNil(t, got)
	assert.Same(t, GetLogger(), got)
}
