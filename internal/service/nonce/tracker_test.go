package nonce

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-signer/internal/model"
	"wallet-signer/internal/repo"
)

const addr = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

func TestTrackerGetSave(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(repo.NewMemoryRepository[model.Nonce]())

	_, found, err := tr.Get(ctx, 1, addr)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tr.Save(ctx, 1, addr, 5))

	n, found, err := tr.Get(ctx, 1, strings.ToLower(addr))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(5), n)

	// 不同链互不影响
	_, found, err = tr.Get(ctx, 10, addr)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTrackerTrustsWriter(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(repo.NewMemoryRepository[model.Nonce]())

	// 乱序保存不会被拒绝, 以最后一次写入为准
	require.NoError(t, tr.Save(ctx, 1, addr, 9))
	require.NoError(t, tr.Save(ctx, 1, addr, 7))

	n, _, err := tr.Get(ctx, 1, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
}
