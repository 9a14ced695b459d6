package worker

import (
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"wallet-signer/pkg/logger"
)

// 已完成的补写任务在 Redis 中保留一天, 便于排查重复写入
const defaultRetention = 24 * time.Hour

// Client 活动记录补写任务的投递端, 满足 activity.Enqueuer
type Client struct {
	client   *asynq.Client
	defaults []asynq.Option
}

type ClientOption func(*Client)

// WithDefaults 追加每次投递都带上的选项, 调用方传入的选项优先
func WithDefaults(opts ...asynq.Option) ClientOption {
	return func(c *Client) { c.defaults = append(c.defaults, opts...) }
}

// NewClient 连接 worker 使用的 Redis
// addr: "localhost:6379"
func NewClient(addr string, password string, db int, opts ...ClientOption) *Client {
	c := &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		defaults: []asynq.Option{asynq.Retention(defaultRetention)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue 投递任务; 选项顺序为 默认值 -> 调用方, asynq 以后出现的为准
func (c *Client) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := c.client.Enqueue(task, c.options(opts)...)
	if err != nil {
		logger.Warn("[Worker] 任务投递失败", zap.String("type", task.Type()), zap.Error(err))
		return nil, err
	}
	logger.Debug("[Worker] 任务已投递",
		zap.String("type", task.Type()),
		zap.String("queue", info.Queue),
		zap.String("task_id", info.ID),
		zap.Int("max_retry", info.MaxRetry),
	)
	return info, nil
}

func (c *Client) options(opts []asynq.Option) []asynq.Option {
	merged := make([]asynq.Option, 0, len(c.defaults)+len(opts))
	merged = append(merged, c.defaults...)
	return append(merged, opts...)
}

func (c *Client) Close() error {
	return c.client.Close()
}
