package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"wallet-signer/internal/model"
	"wallet-signer/internal/repo"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/wallet/types"
)

const cacheTTL = 10 * time.Minute

// Registry 账户注册表: 持久化在 Repository, 按地址查找走进程内缓存
type Registry struct {
	repo  repo.Repository[model.Account]
	cache *gocache.Cache

	// 串行化写操作, 保证默认名称里的序号不重复
	mu sync.Mutex
}

func NewRegistry(r repo.Repository[model.Account]) *Registry {
	return &Registry{
		repo:  r,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// NormalizeAddress 校验并转换为 EIP-55 校验和格式
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", errno.ErrBind.WithMessage(fmt.Sprintf("invalid address %q", address))
	}
	return common.HexToAddress(address).Hex(), nil
}

// Add 注册新账户; 未提供名称时默认为 "Wallet N"
func (r *Registry) Add(ctx context.Context, acc types.Account) (types.Account, error) {
	addr, err := NormalizeAddress(acc.Address)
	if err != nil {
		return types.Account{}, err
	}
	acc.Address = addr

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.repo.Get(ctx, addr); err == nil {
		return types.Account{}, errno.ErrAccountExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return types.Account{}, fmt.Errorf("account registry: %w", err)
	}

	if strings.TrimSpace(acc.Name) == "" {
		n, err := r.repo.Count(ctx)
		if err != nil {
			return types.Account{}, fmt.Errorf("account registry: count: %w", err)
		}
		acc.Name = fmt.Sprintf("Wallet %d", n+1)
	}

	if err := r.repo.Put(ctx, model.AccountFromDomain(acc)); err != nil {
		return types.Account{}, fmt.Errorf("account registry: put: %w", err)
	}
	r.cache.SetDefault(addr, acc)

	logger.Info("[Accounts] 账户已添加", zap.String("address", addr), zap.String("type", string(acc.Type)))
	return acc, nil
}

// Find 按地址查找, 地址大小写不敏感
func (r *Registry) Find(ctx context.Context, address string) (types.Account, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return types.Account{}, errno.ErrAccountNotFound
	}

	if v, ok := r.cache.Get(addr); ok {
		return v.(types.Account), nil
	}

	rec, err := r.repo.Get(ctx, addr)
	if errors.Is(err, repo.ErrNotFound) {
		return types.Account{}, errno.ErrAccountNotFound
	}
	if err != nil {
		return types.Account{}, fmt.Errorf("account registry: %w", err)
	}

	acc := rec.ToDomain()
	r.cache.SetDefault(addr, acc)
	return acc, nil
}

func (r *Registry) List(ctx context.Context) ([]types.Account, error) {
	recs, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("account registry: %w", err)
	}
	out := make([]types.Account, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ToDomain())
	}
	return out, nil
}

// Rename 只允许修改显示名称
func (r *Registry) Rename(ctx context.Context, address, name string) error {
	acc, err := r.Find(ctx, address)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	acc.Name = name
	if err := r.repo.Put(ctx, model.AccountFromDomain(acc)); err != nil {
		return fmt.Errorf("account registry: put: %w", err)
	}
	r.cache.Delete(acc.Address)
	return nil
}

// Delete 删除账户, 不影响该地址的 nonce 记录
func (r *Registry) Delete(ctx context.Context, address string) (types.Account, error) {
	acc, err := r.Find(ctx, address)
	if err != nil {
		return types.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.Delete(ctx, acc.Address); err != nil {
		return types.Account{}, fmt.Errorf("account registry: delete: %w", err)
	}
	r.cache.Delete(acc.Address)

	logger.Info("[Accounts] 账户已删除", zap.String("address", acc.Address))
	return acc, nil
}
