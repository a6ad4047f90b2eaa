package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestClaimThenReplay(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	if err := reg.Claim(ctx, "sig-1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := reg.Claim(ctx, "sig-1"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	claimed, err := reg.IsClaimed(ctx, "sig-1")
	if err != nil || !claimed {
		t.Fatalf("expected sig-1 claimed, got claimed=%v err=%v", claimed, err)
	}
}

func TestClaimRequiresSignature(t *testing.T) {
	reg := NewInMemory()
	if err := reg.Claim(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty signature")
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	if err := reg.Claim(ctx, "sig-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := reg.Release(ctx, "sig-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := reg.Claim(ctx, "sig-1"); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestConcurrentClaimsExactlyOneWinner(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	wins := make(chan struct{}, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reg.Claim(ctx, "sig-race"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", n)
	}
}
