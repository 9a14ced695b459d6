package activity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"wallet-signer/internal/model"
	"wallet-signer/internal/repo"
	"wallet-signer/internal/service/mq"
	"wallet-signer/internal/worker/tasks"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/wallet/types"
)

// Enqueuer 异步任务队列 (worker.Client)
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Log 已结算活动的只追加记录
type Log struct {
	repo     repo.Repository[model.Activity]
	producer mq.Producer
	queue    Enqueuer
}

type Option func(*Log)

// WithProducer 写入成功后发布 activity.settled 事件
func WithProducer(p mq.Producer) Option {
	return func(l *Log) { l.producer = p }
}

// WithRetryQueue 启用 RetryLater
func WithRetryQueue(q Enqueuer) Option {
	return func(l *Log) { l.queue = q }
}

func NewLog(r repo.Repository[model.Activity], opts ...Option) *Log {
	l := &Log{repo: r}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append 写入一条已结算活动; 事件发布失败只记录日志
func (l *Log) Append(ctx context.Context, rec model.Activity) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := l.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("append activity %s: %w", rec.ID, err)
	}

	if l.producer != nil {
		payload, err := json.Marshal(rec)
		if err == nil {
			err = l.producer.Publish(ctx, mq.TopicActivitySettled, rec.AccountAddress, payload)
		}
		if err != nil {
			logger.Warn("[Activity] 事件发布失败", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

// RetryLater 把写入失败的记录交给 worker 重试
func (l *Log) RetryLater(rec model.Activity) error {
	if l.queue == nil {
		return errors.New("activity retry queue not configured")
	}
	task, err := tasks.NewActivityPersistTask(rec)
	if err != nil {
		return err
	}
	info, err := l.queue.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue activity %s: %w", rec.ID, err)
	}
	logger.Info("[Activity] 已加入补写队列", zap.String("id", rec.ID), zap.String("task_id", info.ID))
	return nil
}

func (l *Log) Get(ctx context.Context, id string) (model.Activity, error) {
	rec, err := l.repo.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Activity{}, errno.ErrNotFound
	}
	return rec, err
}

func (l *Log) Count(ctx context.Context) (int64, error) {
	return l.repo.Count(ctx)
}

func (l *Log) List(ctx context.Context) ([]model.Activity, error) {
	return l.repo.List(ctx)
}

// NewRecord 由已广播的交易活动构造持久化记录
func NewRecord(a *types.Activity, p *types.TransactionPayload, rawTx, txHash string, value *big.Int, at time.Time) (model.Activity, error) {
	digest, err := ParamsDigest(p.TxParams)
	if err != nil {
		return model.Activity{}, err
	}
	v := decimal.Zero
	if value != nil {
		v = decimal.NewFromBigInt(value, 0)
	}
	return model.Activity{
		ID:             a.ID,
		Type:           string(a.Type()),
		Source:         a.Source,
		ChainID:        p.ChainID,
		AccountAddress: p.AccountAddress,
		TxParams:       p.TxParams,
		RawTx:          rawTx,
		TxHash:         txHash,
		Value:          v,
		ParamsDigest:   digest,
		TimeAt:         at,
	}, nil
}

// ParamsDigest 请求参数规范 JSON 的 blake3 指纹, 记录用户审批时看到的内容
func ParamsDigest(params types.TxParams) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
