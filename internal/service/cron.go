package service

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/wallet/types"
)

// Locker 可自动锁定的钱包 (vault.Vault)
type Locker interface {
	Status() types.WalletStatus
	LastUsed() time.Time
	Lock()
}

// CronService 定时任务: 空闲超时自动锁定
type CronService struct {
	cron  *cron.Cron
	vault Locker
	idle  time.Duration
	now   func() time.Time
}

// NewCronService idle 为 0 时不自动锁定
func NewCronService(v Locker, idle time.Duration) *CronService {
	return &CronService{
		cron:  cron.New(),
		vault: v,
		idle:  idle,
		now:   time.Now,
	}
}

func (s *CronService) Start() {
	if s.idle <= 0 {
		logger.Info("[Cron] 自动锁定已关闭")
		return
	}
	_, _ = s.cron.AddFunc("@every 1m", s.AutoLock)

	s.cron.Start()
	logger.Info("[Cron] Cron Service started", zap.Duration("auto_lock", s.idle))
}

func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("[Cron] Cron Service stopped")
}

// AutoLock 钱包解锁且空闲超过 idle 时锁定
func (s *CronService) AutoLock() {
	if s.vault.Status() != types.WalletStatusUnlocked {
		return
	}
	idleFor := s.now().Sub(s.vault.LastUsed())
	if idleFor < s.idle {
		return
	}
	logger.Info("[Cron] 钱包空闲超时, 自动锁定", zap.Duration("idle", idleFor))
	s.vault.Lock()
}
