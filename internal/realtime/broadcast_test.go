package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestBroadcastReplaceRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	b, err := NewRedisBroadcaster(srv.Addr(), "")
	if err != nil {
		t.Fatalf("broadcaster: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, closeSub, err := b.Subscribe(ctx, "previews:tenant-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer closeSub()

	fragment := `<div id="document_doc-1"><img src="/p.jpg"></div>`
	if err := b.BroadcastReplace(ctx, "previews:tenant-1", "document_doc-1", fragment); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case msg := <-messages:
		if msg.Target != "document_doc-1" {
			t.Fatalf("target = %q, want document_doc-1", msg.Target)
		}
		if msg.Fragment != fragment {
			t.Fatalf("fragment = %q", msg.Fragment)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestSubscribeIsChannelScoped(t *testing.T) {
	srv := miniredis.RunT(t)
	b, err := NewRedisBroadcaster(srv.Addr(), "")
	if err != nil {
		t.Fatalf("broadcaster: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, closeSub, err := b.Subscribe(ctx, "previews:tenant-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer closeSub()

	if err := b.BroadcastReplace(ctx, "previews:tenant-2", "document_other", "<div></div>"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case msg := <-messages:
		t.Fatalf("received message from another tenant channel: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewRedisBroadcasterRequiresAddr(t *testing.T) {
	if _, err := NewRedisBroadcaster("  ", ""); err == nil {
		t.Fatal("expected error for blank addr")
	}
}
