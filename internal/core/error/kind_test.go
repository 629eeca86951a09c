package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestExecutionKinds(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{errors.New(`near "FROM": syntax error`), KindSyntax},
		{errors.New("incomplete input"), KindSyntax},
		{errors.New("no such table: nowhere"), KindExecution},
		{fmt.Errorf("interrupted: %w", context.DeadlineExceeded), KindTimeout},
	}
	for _, tt := range tests {
		err := Execution("SELECT 1", tt.err)
		assert.Equal(t, tt.want, KindOf(err), tt.err.Error())
		assert.ErrorIs(t, err, tt.err)
		assert.Contains(t, err.Error(), QueryErrorMessage)
	}
	assert.Nil(t, Execution("SELECT 1", nil))
}

func TestServiceKinds(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(Service("complete", context.DeadlineExceeded)))
	assert.Equal(t, KindUnavailable, KindOf(Service("complete", errors.New("503"))))
	assert.Nil(t, Service("complete", nil))

	inner := Service("inner", context.DeadlineExceeded)
	outer := Service("outer", fmt.Errorf("wrapped: %w", inner))
	assert.Equal(t, KindTimeout, KindOf(outer))
	assert.Contains(t, outer.Error(), "wrapped")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindExecution, KindOf(errors.New("plain")))
	assert.Equal(t, KindSyntax, KindOf(fmt.Errorf("ctx: %w", Execution("q", errors.New("syntax error")))))
}

func TestWrapRedis(t *testing.T) {
	assert.Nil(t, WrapRedis(nil))

	notFound := WrapRedis(redis.Nil)
	assert.Equal(t, http.StatusNotFound, notFound.Status)
	assert.ErrorIs(t, notFound, redis.Nil)

	other := WrapRedis(errors.New("connection refused"))
	assert.Equal(t, RedisErrorMessage, other.Message)

	var app *AppError
	assert.True(t, errors.As(fmt.Errorf("save: %w", other), &app))
}
