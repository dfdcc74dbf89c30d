package engine

import (
	"context"
	"fmt"
)

// RodOpenFunc acquires a browser-backed session. It is injected from main.go
// so that engine/ never imports scraper/.
type RodOpenFunc func(ctx context.Context, stealth bool) (Session, error)

// RodEngine is the rendered tier. It delegates to the rod scraper through a
// callback; forceStealth distinguishes "rod" from "rod-stealth".
type RodEngine struct {
	openFunc     RodOpenFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine.
//   - openFunc: callback that checks a tab out of the scraper's pool.
//   - forceStealth: when true, every session gets the stealth script.
func NewRodEngine(openFunc RodOpenFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{
		openFunc:     openFunc,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Tier() Tier { return TierRendered }

func (e *RodEngine) Open(ctx context.Context) (Session, error) {
	if e.openFunc == nil {
		return nil, fmt.Errorf("%s: openFunc not configured", e.name)
	}
	sess, err := e.openFunc(ctx, e.forceStealth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	return &rodSession{inner: sess, name: e.name}, nil
}

// rodSession stamps the engine name on results and errors.
type rodSession struct {
	inner Session
	name  string
}

func (s *rodSession) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	result, err := s.inner.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%s: empty fetch result for %s", s.name, req.URL)
	}
	result.EngineName = s.name
	return result, nil
}

func (s *rodSession) Close(ok bool) { s.inner.Close(ok) }
