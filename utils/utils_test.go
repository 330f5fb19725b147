package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitAndTrim(" a, b ,,c "))
	assert.Nil(t, SplitAndTrim(" , "))
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = context.WithValue(ctx, RequestIDKey, "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestToPtr(t *testing.T) {
	p := ToPtr(int64(7))
	assert.Equal(t, int64(7), *p)
}
