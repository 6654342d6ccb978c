package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	codeact "github.com/nevindra/codeact"
	"github.com/nevindra/codeact/store/storetest"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, opts...), mr
}

func TestConformance(t *testing.T) {
	s, _ := newTestStore(t)
	storetest.Run(t, s)
}

func TestKeyLayout(t *testing.T) {
	s, mr := newTestStore(t, WithPrefix("t:"))
	cp := codeact.NewCheckpoint("chat", []codeact.Message{codeact.UserMessage("hi")})
	if err := s.Save(context.Background(), cp); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("t:checkpoint:chat:" + cp.ID) {
		t.Error("checkpoint key missing")
	}
	members, err := mr.ZMembers("t:session:chat")
	if err != nil || len(members) != 1 || members[0] != cp.ID {
		t.Errorf("index = %v, %v", members, err)
	}
}

func TestTTL(t *testing.T) {
	s, mr := newTestStore(t, WithTTL(time.Minute))
	ctx := context.Background()
	if err := s.Save(ctx, codeact.NewCheckpoint("chat", nil)); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("codeact:session:chat"); ttl != time.Minute {
		t.Errorf("index ttl = %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.LoadLatest(ctx, "chat"); err != codeact.ErrNoCheckpoint {
		t.Errorf("after expiry err = %v, want ErrNoCheckpoint", err)
	}
}
