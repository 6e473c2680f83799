package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRedisCacheRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "")
	ctx := context.Background()

	c.Set(ctx, "messages:single:m1", payload{Name: "hello", Count: 2}, 0)

	var got payload
	if !c.Get(ctx, "messages:single:m1", &got) {
		t.Fatalf("expected cache hit")
	}
	if got.Name != "hello" || got.Count != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}

	c.Delete(ctx, "messages:single:m1")
	if c.Get(ctx, "messages:single:m1", &got) {
		t.Fatalf("expected miss after delete")
	}
}

func TestRedisCacheDefaultTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "")
	ctx := context.Background()

	c.Set(ctx, "k", payload{Name: "v"}, 0)

	srv.FastForward(DefaultTTL + time.Second)

	var got payload
	if c.Get(ctx, "k", &got) {
		t.Fatalf("expected entry to expire after default TTL")
	}
}

func TestRedisCacheDeletePattern(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "")
	ctx := context.Background()

	for _, key := range []string{
		ConversationsKey("u1", 1, 10),
		ConversationsKey("u1", 2, 10),
		ConversationsKey("u2", 1, 10),
		ThreadKey("u1", "u2", 1, 20),
	} {
		c.Set(ctx, key, payload{Name: "x"}, 0)
	}

	c.DeletePattern(ctx, ConversationsPrefix("u1"))

	var got payload
	if c.Get(ctx, ConversationsKey("u1", 1, 10), &got) {
		t.Fatalf("u1 page 1 should be invalidated")
	}
	if c.Get(ctx, ConversationsKey("u1", 2, 10), &got) {
		t.Fatalf("u1 page 2 should be invalidated")
	}
	if !c.Get(ctx, ConversationsKey("u2", 1, 10), &got) {
		t.Fatalf("u2 conversations must survive u1 invalidation")
	}
	if !c.Get(ctx, ThreadKey("u1", "u2", 1, 20), &got) {
		t.Fatalf("thread key must survive conversations invalidation")
	}
}

func TestRedisCacheDeletePatternManyKeys(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "")
	ctx := context.Background()

	// More keys than one scan/delete batch.
	for page := 0; page < 350; page++ {
		c.Set(ctx, ConversationsKey("u1", page, 10), payload{Count: page}, 0)
	}

	c.DeletePattern(ctx, ConversationsPrefix("u1"))

	var got payload
	for page := 0; page < 350; page += 50 {
		if c.Get(ctx, ConversationsKey("u1", page, 10), &got) {
			t.Fatalf("page %d should be invalidated", page)
		}
	}
}

func TestRedisCacheDegradesWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	c := NewRedisCache(addr, "")
	ctx := context.Background()

	c.Set(ctx, "k", payload{Name: "v"}, 0)
	srv.Close()

	// Every operation must absorb the failure silently.
	var got payload
	if c.Get(ctx, "k", &got) {
		t.Fatalf("expected miss while backend is down")
	}
	c.Set(ctx, "k2", payload{Name: "w"}, 0)
	c.Delete(ctx, "k")
	c.DeletePattern(ctx, "messages:*")
	c.DeleteExact(ctx, "k", "k2")
}

func TestThreadKeyCanonicalOrder(t *testing.T) {
	if ThreadKey("b", "a", 1, 20) != ThreadKey("a", "b", 1, 20) {
		t.Fatalf("thread key must be order-independent")
	}
	if ThreadPrefix("u9", "u10") != ThreadPrefix("u10", "u9") {
		t.Fatalf("thread prefix must be order-independent")
	}
}
