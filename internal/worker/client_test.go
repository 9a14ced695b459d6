package worker

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptionsOrder(t *testing.T) {
	c := &Client{defaults: []asynq.Option{asynq.Retention(defaultRetention)}}
	WithDefaults(asynq.MaxRetry(3))(c)

	got := c.options([]asynq.Option{asynq.MaxRetry(7)})
	require.Len(t, got, 3)

	// 默认值在前, 调用方的 MaxRetry 排在最后生效
	assert.Equal(t, asynq.RetentionOpt, got[0].Type())
	assert.Equal(t, defaultRetention, got[0].Value())
	assert.Equal(t, asynq.MaxRetryOpt, got[1].Type())
	assert.Equal(t, 3, got[1].Value())
	assert.Equal(t, asynq.MaxRetryOpt, got[2].Type())
	assert.Equal(t, 7, got[2].Value())
}

func TestClientOptionsDoNotAlias(t *testing.T) {
	c := &Client{defaults: make([]asynq.Option, 1, 4)}
	c.defaults[0] = asynq.Retention(time.Hour)

	a := c.options([]asynq.Option{asynq.Queue("low")})
	b := c.options([]asynq.Option{asynq.Queue("critical")})
	assert.Equal(t, "low", a[1].Value())
	assert.Equal(t, "critical", b[1].Value())
	assert.Len(t, c.defaults, 1)
}
