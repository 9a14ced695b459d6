package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"wallet-signer/internal/model"
	"wallet-signer/pkg/logger"
)

// 任务类型常量
const (
	TypeActivityPersist = "activity:persist"
)

// 队列名与 worker 的权重配置一致
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ActivityAppender 活动记录写入方
type ActivityAppender interface {
	Append(ctx context.Context, rec model.Activity) error
}

// NewActivityPersistTask 创建活动记录补写任务, 最多重试 5 次
func NewActivityPersistTask(rec model.Activity) (*asynq.Task, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeActivityPersist, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
		asynq.Queue(QueueLow),
	), nil
}

// NewActivityPersistHandler 重新执行 Append
func NewActivityPersistHandler(log ActivityAppender) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec model.Activity
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			// JSON 解析失败，重试也没用
			return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
		}

		if err := log.Append(ctx, rec); err != nil {
			logger.Warn("[Worker] 活动记录补写失败", zap.String("id", rec.ID), zap.Error(err))
			return err
		}
		logger.Info("[Worker] 活动记录补写成功", zap.String("id", rec.ID), zap.String("tx_hash", rec.TxHash))
		return nil
	}
}
