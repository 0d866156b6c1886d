// Package gateway is the intake front end. It turns wire requests into
// engine commands, assigns order ids, and journals every accepted command
// before the sequencer applies it, so the journal order is the apply order.
package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/engine"
	"github.com/nathanyu/matching-engine/internal/journal"
	"github.com/nathanyu/matching-engine/internal/sequencer"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// SubmitRequest is the wire form of a new order. OrderID 0 asks the
// gateway to assign one. TIF defaults to gtc when empty.
type SubmitRequest struct {
	OrderID    uint64 `json:"order_id"`
	Side       string `json:"side"`
	Kind       string `json:"kind"`
	TIF        string `json:"tif,omitempty"`
	Qty        uint64 `json:"qty"`
	LimitPrice int64  `json:"limit_price,omitempty"`
	StopPrice  int64  `json:"stop_price,omitempty"`
}

// CancelRequest names the order to pull.
type CancelRequest struct {
	OrderID uint64 `json:"order_id"`
}

// ModifyRequest carries the replacement values for a live order.
type ModifyRequest struct {
	OrderID    uint64 `json:"order_id"`
	Qty        uint64 `json:"qty"`
	LimitPrice int64  `json:"limit_price,omitempty"`
	StopPrice  int64  `json:"stop_price,omitempty"`
}

// Gateway validates requests, journals them and forwards them to the
// sequencer. The mutex keeps journal order identical to apply order.
type Gateway struct {
	mu  sync.Mutex
	svc *sequencer.Service
	jnl *journal.Journal

	// lastID is the highest order id seen or assigned, including replayed ones.
	lastID atomic.Uint64
}

// New builds a gateway over a running sequencer service and an open journal.
func New(svc *sequencer.Service, jnl *journal.Journal) *Gateway {
	return &Gateway{svc: svc, jnl: jnl}
}

// Submit validates, journals and applies a new order. It returns the
// resolved order id alongside any trades the order produced.
func (g *Gateway) Submit(req SubmitRequest) (domain.OrderID, []domain.Trade, error) {
	spec, err := buildSpec(req)
	if err != nil {
		return 0, nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := domain.OrderID(req.OrderID)
	if id == 0 {
		id = g.lastID.Add(1)
	} else {
		g.noteID(id)
	}
	req.OrderID = id
	spec.OrderID = id

	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: encode submit: %w", err)
	}
	if _, err := g.jnl.Append(journal.RecordSubmit, payload); err != nil {
		return 0, nil, fmt.Errorf("gateway: journal submit: %w", err)
	}
	telemetry.JournalAppends.Inc()

	trades, err := g.svc.Submit(spec)
	return id, trades, err
}

// Cancel journals and applies a cancel. True means an order went from
// live to cancelled.
func (g *Gateway) Cancel(req CancelRequest) (bool, error) {
	if req.OrderID == 0 {
		return false, fmt.Errorf("%w: order id required", domain.ErrInvalidOrder)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("gateway: encode cancel: %w", err)
	}
	if _, err := g.jnl.Append(journal.RecordCancel, payload); err != nil {
		return false, fmt.Errorf("gateway: journal cancel: %w", err)
	}
	telemetry.JournalAppends.Inc()

	return g.svc.Cancel(req.OrderID)
}

// Modify journals and applies a modify.
func (g *Gateway) Modify(req ModifyRequest) ([]domain.Trade, error) {
	if req.OrderID == 0 {
		return nil, fmt.Errorf("%w: order id required", domain.ErrInvalidOrder)
	}
	if req.Qty == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidOrder, domain.RejectReasonZeroQuantity)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode modify: %w", err)
	}
	if _, err := g.jnl.Append(journal.RecordModify, payload); err != nil {
		return nil, fmt.Errorf("gateway: journal modify: %w", err)
	}
	telemetry.JournalAppends.Inc()

	return g.svc.Modify(req.OrderID, req.Qty, req.LimitPrice, req.StopPrice)
}

// Replay re-applies every journaled command directly to the engine. Call
// it on startup while the engine is still single-threaded: before the
// sequencer loop starts and before any consumer or listener is attached.
// Engine-level failures reproduce the original run and do not stop replay.
func (g *Gateway) Replay(eng *engine.Engine) (int, error) {
	applied, engineErrs := 0, 0
	err := g.jnl.Replay(func(rec journal.Record) error {
		switch rec.Type {
		case journal.RecordSubmit:
			var req SubmitRequest
			if err := json.Unmarshal(rec.Payload, &req); err != nil {
				return fmt.Errorf("gateway: submit payload at seq %d: %w", rec.Seq, err)
			}
			g.noteID(req.OrderID)
			spec, err := buildSpec(req)
			if err != nil {
				return fmt.Errorf("gateway: submit at seq %d: %w", rec.Seq, err)
			}
			if _, err := eng.Submit(spec); err != nil {
				engineErrs++
			}
		case journal.RecordCancel:
			var req CancelRequest
			if err := json.Unmarshal(rec.Payload, &req); err != nil {
				return fmt.Errorf("gateway: cancel payload at seq %d: %w", rec.Seq, err)
			}
			eng.Cancel(req.OrderID)
		case journal.RecordModify:
			var req ModifyRequest
			if err := json.Unmarshal(rec.Payload, &req); err != nil {
				return fmt.Errorf("gateway: modify payload at seq %d: %w", rec.Seq, err)
			}
			if _, err := eng.Modify(req.OrderID, req.Qty, req.LimitPrice, req.StopPrice); err != nil {
				engineErrs++
			}
		default:
			return fmt.Errorf("gateway: unknown record type %d at seq %d", rec.Type, rec.Seq)
		}
		applied++
		return nil
	})
	if err != nil {
		return applied, err
	}
	log.Printf("[gateway] replayed %d commands (%d reproduced engine errors)", applied, engineErrs)
	return applied, nil
}

// LastID returns the highest order id the gateway has seen or assigned.
func (g *Gateway) LastID() uint64 {
	return g.lastID.Load()
}

func (g *Gateway) noteID(id uint64) {
	for {
		cur := g.lastID.Load()
		if cur >= id || g.lastID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// buildSpec parses and validates a submit request. Garbage is refused
// here, before an id is burned or a journal record written; the order
// model applies the same structural rules again on its side.
func buildSpec(req SubmitRequest) (domain.OrderSpec, error) {
	side, err := domain.SideStrToType(req.Side)
	if err != nil {
		return domain.OrderSpec{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	kind, err := domain.OrderTypeStrToType(req.Kind)
	if err != nil {
		return domain.OrderSpec{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	tif := domain.TimeInForceGTC
	if req.TIF != "" {
		tif, err = domain.TimeInForceStrToType(req.TIF)
		if err != nil {
			return domain.OrderSpec{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
		}
	}
	if req.Qty == 0 {
		return domain.OrderSpec{}, fmt.Errorf("%w: %s", domain.ErrInvalidOrder, domain.RejectReasonZeroQuantity)
	}
	if (kind == domain.OrderTypeLimit || kind == domain.OrderTypeStopLimit) && req.LimitPrice == 0 {
		return domain.OrderSpec{}, fmt.Errorf("%w: %s", domain.ErrInvalidOrder, domain.RejectReasonMissingLimit)
	}
	if (kind == domain.OrderTypeStop || kind == domain.OrderTypeStopLimit) && req.StopPrice == 0 {
		return domain.OrderSpec{}, fmt.Errorf("%w: %s", domain.ErrInvalidOrder, domain.RejectReasonMissingStopPrice)
	}
	return domain.OrderSpec{
		OrderID:    req.OrderID,
		Side:       side,
		Kind:       kind,
		TIF:        tif,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
	}, nil
}
