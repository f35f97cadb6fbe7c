// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import "sync"

// DecryptionOracle transports decryption requests to whatever holds the
// network secret key and returns plaintexts to the engine. Fulfillment
// order is not guaranteed to match submission order.
type DecryptionOracle interface {
	// Submit queues a request for the given handle.
	Submit(requestID uint64, h Handle)

	attach(e *Engine)
}

// LoopbackOracle fulfills requests in-process against the local
// backend. With Hold unset every request resolves inside Submit, which
// is the single-node configuration. Setting Hold queues requests so
// callers control fulfillment timing and order.
type LoopbackOracle struct {
	// Hold defers fulfillment until Release or ReleaseAll.
	Hold bool

	mu     sync.Mutex
	engine *Engine
	queue  []heldRequest
}

type heldRequest struct {
	id     uint64
	handle Handle
}

func (o *LoopbackOracle) attach(e *Engine) { o.engine = e }

func (o *LoopbackOracle) Submit(requestID uint64, h Handle) {
	o.mu.Lock()
	if o.Hold {
		o.queue = append(o.queue, heldRequest{id: requestID, handle: h})
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.resolve(heldRequest{id: requestID, handle: h})
}

func (o *LoopbackOracle) resolve(req heldRequest) {
	value, err := o.engine.Reveal(req.handle)
	if err != nil {
		o.engine.log.Warn("oracle cannot resolve handle", "id", req.id, "err", err)
		return
	}
	o.engine.fulfill(req.id, value)
}

// Release fulfills the held request with the given id, if queued.
func (o *LoopbackOracle) Release(requestID uint64) bool {
	o.mu.Lock()
	idx := -1
	for i, req := range o.queue {
		if req.id == requestID {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return false
	}
	req := o.queue[idx]
	o.queue = append(o.queue[:idx], o.queue[idx+1:]...)
	o.mu.Unlock()

	o.resolve(req)
	return true
}

// ReleaseAll fulfills every held request in submission order.
func (o *LoopbackOracle) ReleaseAll() {
	o.mu.Lock()
	queue := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, req := range queue {
		o.resolve(req)
	}
}

// HeldRequests reports the ids of requests awaiting release.
func (o *LoopbackOracle) HeldRequests() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uint64, len(o.queue))
	for i, req := range o.queue {
		ids[i] = req.id
	}
	return ids
}
