package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/use-agent/livehls/engine"
)

const base = "https://v.example"

type fakePage struct {
	html     string
	link     string // canonical href, answered to ReadCanonical
	selected string // href answered to ReadSelectorHref
	err      error
	block    bool // wait for ctx and fail with its error
}

type fakeEngine struct {
	name    string
	tier    engine.Tier
	pages   map[string]fakePage
	openErr error

	mu       sync.Mutex
	opened   int
	closedOK []bool
	fetched  []string
	requests []engine.FetchRequest
	active   int
	maxLive  int
}

func newStatic(pages map[string]fakePage) *fakeEngine {
	return &fakeEngine{name: "http", tier: engine.TierStatic, pages: pages}
}

func newRendered(pages map[string]fakePage) *fakeEngine {
	return &fakeEngine{name: "rod", tier: engine.TierRendered, pages: pages}
}

func (f *fakeEngine) Name() string      { return f.name }
func (f *fakeEngine) Tier() engine.Tier { return f.tier }

func (f *fakeEngine) Open(context.Context) (engine.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	f.active++
	if f.active > f.maxLive {
		f.maxLive = f.active
	}
	return &fakeSession{engine: f}, nil
}

func (f *fakeEngine) Requests() []engine.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.FetchRequest(nil), f.requests...)
}

func (f *fakeEngine) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type fakeSession struct {
	engine *fakeEngine
}

func (s *fakeSession) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f := s.engine
	f.mu.Lock()
	f.fetched = append(f.fetched, req.URL)
	f.requests = append(f.requests, *req)
	p, ok := f.pages[req.URL]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unexpected fetch of %s", req.URL)
	}
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	res := &engine.FetchResult{HTML: p.html, StatusCode: 200, FinalURL: req.URL, EngineName: f.name}
	switch req.Directive {
	case engine.ReadCanonical:
		res.Link = p.link
	case engine.ReadSelectorHref:
		res.Link = p.selected
	}
	return res, nil
}

func (s *fakeSession) Close(ok bool) {
	f := s.engine
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.closedOK = append(f.closedOK, ok)
}

type fakeLookup struct {
	manifest string
	err      error
	calls    int
}

func (l *fakeLookup) ManifestURL(context.Context, string) (string, error) {
	l.calls++
	return l.manifest, l.err
}

type fakeProbe struct {
	live bool
	err  error
}

func (p fakeProbe) Live(context.Context, string) (bool, error) {
	return p.live, p.err
}
