package executor

import (
	"context"
	"sync"
)

// FakeRemote is an in-process Remote double so every higher package (and
// its tests) can run without a real SSH server. Adapted from the
// teacher's LocalExecutor (a same-process Executor implementation used by
// its simulation/testing harness), generalized from "run the real
// operation locally" into "record the call and play back a scripted
// response" since this repo's helper payload has no local equivalent to
// execute directly.
type FakeRemote struct {
	mu sync.Mutex

	// Handler, if set, computes a response for each call; it takes
	// priority over Responses.
	Handler func(host string, req Request) (Result, error)

	// Responses is a canned (host, command) -> Result table consulted
	// when Handler is nil. Missing entries return an empty OK Result.
	Responses map[string]map[string]Result

	// HostChecks is a canned host -> HostCheckResult table for CheckHost;
	// a missing host defaults to OK.
	HostChecks map[string]HostCheckResult

	// Facts is a canned host -> Facts table consulted by GatherFacts; a
	// missing host defaults to a zero Facts with no error.
	Facts map[string]Facts

	// Calls records every Run invocation in order, for assertions.
	Calls []Call

	closed map[string]bool
}

// Call is one recorded Run invocation.
type Call struct {
	Host string
	Req  Request
}

// NewFakeRemote returns an empty FakeRemote ready for Responses/Handler to
// be populated by the caller.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		Responses:  make(map[string]map[string]Result),
		HostChecks: make(map[string]HostCheckResult),
		closed:     make(map[string]bool),
	}
}

// Run implements Remote.
func (f *FakeRemote) Run(ctx context.Context, host string, req Request) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Host: host, Req: req})
	f.mu.Unlock()

	if f.Handler != nil {
		return f.Handler(host, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if byCmd, ok := f.Responses[host]; ok {
		if res, ok := byCmd[req.Command]; ok {
			return res, nil
		}
	}
	return Result{Code: 0}, nil
}

// CheckHost implements Remote.
func (f *FakeRemote) CheckHost(ctx context.Context, host string) (HostCheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.HostChecks[host]; ok {
		return res, nil
	}
	return HostCheckResult{Hostname: host, Addr: host, OK: true}, nil
}

// GatherFacts implements Remote.
func (f *FakeRemote) GatherFacts(ctx context.Context, host string) (Facts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Facts[host], nil
}

// Close implements Remote.
func (f *FakeRemote) Close(host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[host] = true
	return nil
}

// CloseAll implements Remote.
func (f *FakeRemote) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h := range f.Responses {
		f.closed[h] = true
	}
}

// SetResponse registers the Result Run should return for (host, command).
func (f *FakeRemote) SetResponse(host, command string, res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Responses[host] == nil {
		f.Responses[host] = make(map[string]Result)
	}
	f.Responses[host][command] = res
}

// Closed reports whether Close/CloseAll has been called for host.
func (f *FakeRemote) Closed(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[host]
}
