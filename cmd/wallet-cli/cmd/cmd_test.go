package cmd

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-signer/internal/model"
	"wallet-signer/internal/service/mq"
	"wallet-signer/pkg/errno"
)

func TestBuildTxParams(t *testing.T) {
	to := "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

	params, err := buildTxParams(5, to, "1.5", "0xa9059cbb")
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(to), *params.To)
	assert.Equal(t, big.NewInt(5), params.ChainID.ToInt())
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, want, params.Value.ToInt())
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, []byte(*params.Data))

	params, err = buildTxParams(1, "", "", "")
	require.NoError(t, err)
	assert.Nil(t, params.To)
	assert.Nil(t, params.Value)
	assert.Nil(t, params.Data)
}

func TestBuildTxParamsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		to    string
		value string
		data  string
	}{
		{name: "bad address", to: "0x1234"},
		{name: "bad amount", value: "abc"},
		{name: "negative amount", value: "-1"},
		{name: "too precise", value: "0.0000000000000000001"},
		{name: "bad data", data: "zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTxParams(1, tt.to, tt.value, tt.data)
			assert.Error(t, err)
		})
	}
}

func TestIsDeclined(t *testing.T) {
	assert.True(t, isDeclined(errno.ErrDeclined))
	assert.False(t, isDeclined(errno.ErrNotFound))
}

type fakeConsumer struct{ msgs []*mq.Message }

func (f *fakeConsumer) Subscribe(_ context.Context, topic string, handler func(msg *mq.Message) error) error {
	for _, m := range f.msgs {
		m.Topic = topic
		if err := handler(m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

func TestTailActivities(t *testing.T) {
	payload, err := json.Marshal(model.Activity{ID: "a", ChainID: 1, TxHash: "0xabc"})
	require.NoError(t, err)

	c := &fakeConsumer{msgs: []*mq.Message{{Payload: payload}}}
	require.NoError(t, tailActivities(context.Background(), c))
	assert.Equal(t, mq.TopicActivitySettled, c.msgs[0].Topic)

	bad := &fakeConsumer{msgs: []*mq.Message{{Payload: []byte("{")}}}
	assert.Error(t, tailActivities(context.Background(), bad))
}
