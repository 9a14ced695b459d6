package approval

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/monitor"
	"wallet-signer/pkg/wallet/types"
)

// Settlement 审批的最终结果, 通过 Reply 送回原始调用方
type Settlement struct {
	TxHash string
	Err    error
}

// Reply 一次性应答句柄, 第一次 Send 之后即被消费
type Reply struct {
	id   string
	ch   chan Settlement
	used atomic.Bool
}

func newReply(id string) *Reply {
	return &Reply{id: id, ch: make(chan Settlement, 1)}
}

// Send delivers s to the original caller. It returns false if the handle was already consumed.
func (r *Reply) Send(s Settlement) bool {
	if !r.used.CompareAndSwap(false, true) {
		logger.Error("[Approval] 重复应答被丢弃", zap.String("id", r.id))
		return false
	}
	r.ch <- s
	close(r.ch)
	return true
}

type state int

const (
	statePending state = iota
	stateProcessing
)

type entry struct {
	activity *types.Activity
	reply    *Reply
	state    state
}

// Pending 被 Claim 后交给处理器的活动及其应答句柄
type Pending struct {
	Activity *types.Activity
	Reply    *Reply
}

// Store 待审批活动表, 所有修改在 mu 下串行
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	feed event.FeedOf[[]*types.Activity]
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Submit 入队一个待审批活动, 返回的 channel 在结算时收到唯一一个结果
func (s *Store) Submit(a *types.Activity) (<-chan Settlement, error) {
	if a == nil || a.ID == "" || a.Payload == nil {
		return nil, errno.ErrBind.WithMessage("activity requires id and payload")
	}

	s.mu.Lock()
	if _, exists := s.entries[a.ID]; exists {
		s.mu.Unlock()
		return nil, errno.ErrBind.WithMessage(fmt.Sprintf("activity %s already pending", a.ID))
	}
	r := newReply(a.ID)
	s.entries[a.ID] = &entry{activity: a, reply: r}
	s.order = append(s.order, a.ID)
	snapshot := s.listLocked()
	s.mu.Unlock()

	logger.Info("[Approval] 新的待审批活动", zap.String("id", a.ID), zap.String("type", string(a.Type())))
	s.publish(snapshot)
	return r.ch, nil
}

// List 按提交顺序返回当前未结算的活动
func (s *Store) List() []*types.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() []*types.Activity {
	out := make([]*types.Activity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].activity)
	}
	return out
}

// Claim 原子地将活动从 Pending 转为 Processing, 同一 id 只有一个调用方能成功
func (s *Store) Claim(id string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.state != statePending {
		return nil, errno.ErrNotFound
	}
	e.state = stateProcessing
	return &Pending{Activity: e.activity, Reply: e.reply}, nil
}

// Resolve 移除活动; id 不存在时为空操作并返回 false
func (s *Store) Resolve(id string) bool {
	s.mu.Lock()
	if _, ok := s.entries[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	snapshot := s.listLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return true
}

// SubscribeUpdates delivers the pending list after every insert or removal.
func (s *Store) SubscribeUpdates(ch chan<- []*types.Activity) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *Store) publish(snapshot []*types.Activity) {
	monitor.Business.ApprovalsPending.Set(float64(len(snapshot)))
	s.feed.Send(snapshot)
}
