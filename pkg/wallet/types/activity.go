package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type ActivityType string

const (
	ActivityTypeTransaction ActivityType = "TRANSACTION"
)

// ActivityVisitor is implemented by everything that handles activities per kind.
// Adding a kind means adding a method here, so every handler must be extended to compile.
type ActivityVisitor interface {
	VisitTransaction(a *Activity, p *TransactionPayload) error
}

// ActivityPayload 是 Activity 的具体内容 (tagged variant)
type ActivityPayload interface {
	Type() ActivityType
	Accept(a *Activity, v ActivityVisitor) error
}

// TransactionPayload 交易类 Activity
type TransactionPayload struct {
	ChainID        uint64   `json:"chainId"`
	AccountAddress string   `json:"accountAddress"`
	TxParams       TxParams `json:"txParams"`
}

func (p *TransactionPayload) Type() ActivityType { return ActivityTypeTransaction }

func (p *TransactionPayload) Accept(a *Activity, v ActivityVisitor) error {
	return v.VisitTransaction(a, p)
}

// Activity 待审批或已结算的用户操作
type Activity struct {
	ID        string          `json:"id"`
	Source    string          `json:"source,omitempty"` // 请求来源, 如 dApp origin
	CreatedAt time.Time       `json:"createdAt"`
	Payload   ActivityPayload `json:"-"`
}

func (a *Activity) Type() ActivityType {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Type()
}

// Accept dispatches to the visitor method for the payload kind.
func (a *Activity) Accept(v ActivityVisitor) error {
	if a.Payload == nil {
		return fmt.Errorf("activity %s has no payload", a.ID)
	}
	return a.Payload.Accept(a, v)
}

type activityJSON struct {
	ID        string          `json:"id"`
	Type      ActivityType    `json:"type"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

func (a Activity) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(activityJSON{
		ID:        a.ID,
		Type:      a.Type(),
		Source:    a.Source,
		CreatedAt: a.CreatedAt,
		Payload:   payload,
	})
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw activityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload ActivityPayload
	switch raw.Type {
	case ActivityTypeTransaction:
		p := new(TransactionPayload)
		if err := json.Unmarshal(raw.Payload, p); err != nil {
			return err
		}
		payload = p
	default:
		return fmt.Errorf("unknown activity type %q", raw.Type)
	}

	*a = Activity{ID: raw.ID, Source: raw.Source, CreatedAt: raw.CreatedAt, Payload: payload}
	return nil
}
