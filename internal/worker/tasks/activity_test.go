package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-signer/internal/model"
)

type recordingAppender struct {
	got []model.Activity
	err error
}

func (r *recordingAppender) Append(_ context.Context, rec model.Activity) error {
	r.got = append(r.got, rec)
	return r.err
}

func TestActivityPersistRoundTrip(t *testing.T) {
	rec := model.Activity{ID: "a-1", Type: "TRANSACTION", ChainID: 1, TxHash: "0xabc"}
	task, err := NewActivityPersistTask(rec)
	require.NoError(t, err)
	assert.Equal(t, TypeActivityPersist, task.Type())

	app := &recordingAppender{}
	require.NoError(t, NewActivityPersistHandler(app)(context.Background(), task))
	require.Len(t, app.got, 1)
	assert.Equal(t, "a-1", app.got[0].ID)
	assert.Equal(t, "0xabc", app.got[0].TxHash)
}

func TestActivityPersistErrors(t *testing.T) {
	app := &recordingAppender{err: errors.New("db down")}
	task, err := NewActivityPersistTask(model.Activity{ID: "a-2"})
	require.NoError(t, err)
	assert.Error(t, NewActivityPersistHandler(app)(context.Background(), task))

	bad := asynq.NewTask(TypeActivityPersist, []byte("{"))
	err = NewActivityPersistHandler(app)(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
