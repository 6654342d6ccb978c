package codeact

import (
	"context"
	"testing"
	"time"
)

func TestWithRateLimitBlocksUntilBudget(t *testing.T) {
	f := &flakyProvider{results: []flakyResult{{resp: Response{ID: "r"}}}}
	p := WithRateLimit(f, 1, 1)

	if _, _, err := drain(p); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ch := make(chan ProviderEvent, 1)
	if _, err := p.Stream(ctx, Request{}, ch); err == nil {
		t.Fatal("second call within the same minute should wait past the deadline")
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed on limiter error")
	}
	if f.calls != 1 {
		t.Errorf("inner calls = %d, want 1", f.calls)
	}
}

func TestWithRateLimitDisabled(t *testing.T) {
	f := &flakyProvider{results: []flakyResult{{resp: Response{ID: "r"}}}}
	if p := WithRateLimit(f, 0, 1); p != Provider(f) {
		t.Error("non-positive rpm should return the provider unchanged")
	}
}
