package activity

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-signer/internal/model"
	"wallet-signer/internal/repo"
	"wallet-signer/internal/service/mq"
	"wallet-signer/internal/worker/tasks"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/wallet/types"
)

type fakeProducer struct {
	topics []string
	keys   []string
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, _ []byte) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return p.err
}

type fakeQueue struct {
	tasks []*asynq.Task
}

func (q *fakeQueue) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func sampleRecord(t *testing.T) model.Activity {
	t.Helper()
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	value := hexutil.Big(*big.NewInt(1000))
	a := &types.Activity{ID: "act-1", Source: "https://dapp.example"}
	p := &types.TransactionPayload{
		ChainID:        1,
		AccountAddress: "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		TxParams:       types.TxParams{To: &to, Value: &value},
	}
	a.Payload = p

	rec, err := NewRecord(a, p, "0x01", "0xhash", big.NewInt(1000), time.Unix(1700000000, 0))
	require.NoError(t, err)
	return rec
}

func TestNewRecord(t *testing.T) {
	rec := sampleRecord(t)

	assert.Equal(t, "act-1", rec.ID)
	assert.Equal(t, "TRANSACTION", rec.Type)
	assert.Equal(t, "1000", rec.Value.String())
	assert.Len(t, rec.ParamsDigest, 64)

	again, err := ParamsDigest(rec.TxParams)
	require.NoError(t, err)
	assert.Equal(t, rec.ParamsDigest, again)

	changed := rec.TxParams
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	changed.To = &other
	d, err := ParamsDigest(changed)
	require.NoError(t, err)
	assert.NotEqual(t, rec.ParamsDigest, d)
}

func TestAppendPublishes(t *testing.T) {
	producer := &fakeProducer{}
	log := NewLog(repo.NewMemoryRepository[model.Activity](), WithProducer(producer))
	ctx := context.Background()

	rec := sampleRecord(t)
	require.NoError(t, log.Append(ctx, rec))

	got, err := log.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xhash", got.TxHash)
	assert.False(t, got.CreatedAt.IsZero())

	n, err := log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, []string{mq.TopicActivitySettled}, producer.topics)
	assert.Equal(t, []string{rec.AccountAddress}, producer.keys)

	_, err = log.Get(ctx, "missing")
	assert.ErrorIs(t, err, errno.ErrNotFound)
}

func TestAppendToleratesPublishFailure(t *testing.T) {
	log := NewLog(repo.NewMemoryRepository[model.Activity](), WithProducer(&fakeProducer{err: errors.New("broker down")}))
	assert.NoError(t, log.Append(context.Background(), sampleRecord(t)))
}

func TestRetryLater(t *testing.T) {
	rec := sampleRecord(t)

	assert.Error(t, NewLog(repo.NewMemoryRepository[model.Activity]()).RetryLater(rec))

	q := &fakeQueue{}
	log := NewLog(repo.NewMemoryRepository[model.Activity](), WithRetryQueue(q))
	require.NoError(t, log.RetryLater(rec))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, tasks.TypeActivityPersist, q.tasks[0].Type())
}
