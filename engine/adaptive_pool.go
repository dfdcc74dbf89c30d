package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolStopped is returned by Get after Stop.
var ErrPoolStopped = errors.New("adaptive_pool: stopped")

// Handle wraps a pooled resource with health tracking metadata.
//
// Scoring rules:
//   - Success: errScore -= 0.5 (min 0)
//   - Failure: errScore += 1.0
//
// Retirement triggers (any one): errScore >= 3.0, useCount >= MaxUses,
// age >= MaxAge.
type Handle[T any] struct {
	ID    int64
	Value T

	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func newHandle[T any](id int64, v T) *Handle[T] {
	return &Handle[T]{ID: id, Value: v, created: time.Now()}
}

// RecordSuccess decreases the error score (min 0).
func (h *Handle[T]) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *Handle[T]) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

func (h *Handle[T]) shouldRetire(maxUses int, maxAge time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= 3.0 || h.useCount >= maxUses || time.Since(h.created) >= maxAge
}

// AdaptivePoolConfig holds configuration for the adaptive pool.
type AdaptivePoolConfig struct {
	MinSize      int
	HardMax      int
	MemThreshold float64 // 0.0–1.0, fraction of heap in use
	ScaleStep    float64 // 0.0–1.0, fraction to grow/shrink
	MaxUses      int
	MaxAge       time.Duration
	ScaleEvery   time.Duration
}

// Factory creates a new pooled resource.
type Factory[T any] func() (T, error)

// Destroyer releases a pooled resource.
type Destroyer[T any] func(T)

// AdaptivePool hands out exclusive handles: a handle is owned by exactly one
// caller between Get and Put. The pool grows up to HardMax on demand and
// shrinks toward MinSize under memory pressure.
type AdaptivePool[T any] struct {
	cfg       AdaptivePoolConfig
	factory   Factory[T]
	destroyer Destroyer[T]

	idle     chan *Handle[T]
	mu       sync.Mutex
	all      map[int64]*Handle[T]
	nextID   atomic.Int64
	active   atomic.Int32
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewAdaptivePool creates and starts an adaptive pool. It pre-creates
// MinSize handles; a failed pre-create is logged, not fatal.
func NewAdaptivePool[T any](cfg AdaptivePoolConfig, factory Factory[T], destroyer Destroyer[T]) *AdaptivePool[T] {
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if cfg.HardMax < 1 {
		cfg.HardMax = 1
	}
	if cfg.HardMax < cfg.MinSize {
		cfg.HardMax = cfg.MinSize
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 50
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 50 * time.Minute
	}
	if cfg.ScaleEvery <= 0 {
		cfg.ScaleEvery = 10 * time.Second
	}

	ap := &AdaptivePool[T]{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		idle:      make(chan *Handle[T], cfg.HardMax),
		all:       make(map[int64]*Handle[T]),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinSize; i++ {
		h, err := ap.createHandle()
		if err != nil {
			slog.Warn("adaptive_pool: failed to pre-create handle", "error", err)
			continue
		}
		ap.idle <- h
	}

	go ap.scalingLoop()
	return ap
}

// Get acquires a handle. It returns an idle one if available, creates one
// while under HardMax, and otherwise blocks until a handle is returned or
// ctx is done.
func (ap *AdaptivePool[T]) Get(ctx context.Context) (*Handle[T], error) {
	select {
	case <-ap.stopped:
		return nil, ErrPoolStopped
	case h := <-ap.idle:
		ap.active.Add(1)
		return h, nil
	default:
	}

	ap.mu.Lock()
	if len(ap.all) < ap.cfg.HardMax {
		h, err := ap.createHandleLocked()
		ap.mu.Unlock()
		if err != nil {
			return nil, err
		}
		ap.active.Add(1)
		return h, nil
	}
	ap.mu.Unlock()

	select {
	case h := <-ap.idle:
		ap.active.Add(1)
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ap.stopped:
		return nil, ErrPoolStopped
	}
}

// Put returns a handle to the pool. Unhealthy handles are destroyed and,
// if the pool dropped below MinSize, replaced.
func (ap *AdaptivePool[T]) Put(h *Handle[T], success bool) {
	ap.active.Add(-1)

	if success {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}

	select {
	case <-ap.stopped:
		ap.destroyHandle(h)
		return
	default:
	}

	if h.shouldRetire(ap.cfg.MaxUses, ap.cfg.MaxAge) {
		slog.Debug("adaptive_pool: retiring handle", "id", h.ID,
			"errScore", h.errScore, "useCount", h.useCount)
		ap.destroyHandle(h)

		ap.mu.Lock()
		if len(ap.all) < ap.cfg.MinSize {
			if newH, err := ap.createHandleLocked(); err == nil {
				ap.mu.Unlock()
				ap.idle <- newH
				return
			}
		}
		ap.mu.Unlock()
		return
	}

	ap.idle <- h
}

// Size returns the total number of live handles.
func (ap *AdaptivePool[T]) Size() int {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return len(ap.all)
}

// ActiveCount returns the number of currently checked-out handles.
func (ap *AdaptivePool[T]) ActiveCount() int {
	return int(ap.active.Load())
}

// HardMax returns the configured upper bound.
func (ap *AdaptivePool[T]) HardMax() int {
	return ap.cfg.HardMax
}

// Stop shuts down the scaling goroutine and destroys idle handles. Handles
// still checked out are destroyed when they are Put back.
func (ap *AdaptivePool[T]) Stop() {
	ap.stopOnce.Do(func() {
		close(ap.stopped)
		for {
			select {
			case h := <-ap.idle:
				ap.destroyHandle(h)
			default:
				return
			}
		}
	})
}

func (ap *AdaptivePool[T]) createHandle() (*Handle[T], error) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.createHandleLocked()
}

// createHandleLocked creates a new handle. Caller must hold ap.mu.
func (ap *AdaptivePool[T]) createHandleLocked() (*Handle[T], error) {
	v, err := ap.factory()
	if err != nil {
		return nil, err
	}
	h := newHandle(ap.nextID.Add(1), v)
	ap.all[h.ID] = h
	return h, nil
}

func (ap *AdaptivePool[T]) destroyHandle(h *Handle[T]) {
	ap.mu.Lock()
	delete(ap.all, h.ID)
	ap.mu.Unlock()
	ap.destroyer(h.Value)
}

// scalingLoop periodically samples memory and adjusts pool size.
func (ap *AdaptivePool[T]) scalingLoop() {
	ticker := time.NewTicker(ap.cfg.ScaleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ap.stopped:
			return
		case <-ticker.C:
			ap.scaleCheck()
		}
	}
}

func (ap *AdaptivePool[T]) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	total := ap.Size()
	var activeRate float64
	if total > 0 {
		activeRate = float64(ap.active.Load()) / float64(total)
	}

	step := int(math.Ceil(float64(total) * ap.cfg.ScaleStep))
	switch {
	case memPressure > ap.cfg.MemThreshold:
		for i := 0; i < step; i++ {
			if ap.Size() <= ap.cfg.MinSize {
				return
			}
			select {
			case h := <-ap.idle:
				slog.Debug("adaptive_pool: shrinking", "id", h.ID)
				ap.destroyHandle(h)
			default:
				return
			}
		}
	case activeRate > 0.8:
		for i := 0; i < step; i++ {
			ap.mu.Lock()
			if len(ap.all) >= ap.cfg.HardMax {
				ap.mu.Unlock()
				return
			}
			h, err := ap.createHandleLocked()
			ap.mu.Unlock()
			if err != nil {
				slog.Warn("adaptive_pool: failed to grow", "error", err)
				return
			}
			slog.Debug("adaptive_pool: grew pool", "id", h.ID)
			ap.idle <- h
		}
	}
}
