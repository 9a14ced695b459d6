package nonce

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"wallet-signer/internal/model"
	"wallet-signer/internal/repo"
	"wallet-signer/pkg/logger"
)

// Tracker 记录 (chainId, address) 最后一次成功广播的 nonce。
// Save 不做单调性校验: 唯一的写入方是审批处理器, 只在广播成功后调用。
type Tracker struct {
	repo repo.Repository[model.Nonce]
}

func NewTracker(r repo.Repository[model.Nonce]) *Tracker {
	return &Tracker{repo: r}
}

// Get returns the last saved nonce. found is false when nothing was saved yet;
// callers then fall back to the network's pending nonce.
func (t *Tracker) Get(ctx context.Context, chainID uint64, address string) (nonce uint64, found bool, err error) {
	rec, err := t.repo.Get(ctx, key(chainID, address))
	if errors.Is(err, repo.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("nonce tracker: %w", err)
	}
	return rec.Nonce, true, nil
}

func (t *Tracker) Save(ctx context.Context, chainID uint64, address string, nonce uint64) error {
	addr := common.HexToAddress(address).Hex()
	err := t.repo.Put(ctx, model.Nonce{
		ID:      model.NonceID(chainID, addr),
		ChainID: chainID,
		Address: addr,
		Nonce:   nonce,
	})
	if err != nil {
		return fmt.Errorf("nonce tracker: %w", err)
	}

	logger.Debug("[Nonce] 已更新", zap.Uint64("chain_id", chainID), zap.String("address", addr), zap.Uint64("nonce", nonce))
	return nil
}

func key(chainID uint64, address string) string {
	return model.NonceID(chainID, common.HexToAddress(address).Hex())
}
