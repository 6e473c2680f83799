package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"snapstreak/internal/util"
)

const (
	channelPrefix  = "realtime:"
	publishTimeout = 3 * time.Second
	connectTimeout = 3 * time.Second
)

// RedisBridge replicates room broadcasts across server processes through
// Redis pub/sub. It holds two connections because a connection in subscriber
// mode cannot also publish: one client carries the publisher role, the other
// the subscriber role. Each role fails independently and neither failure is
// allowed to take the host process down.
type RedisBridge struct {
	pub        *redis.Client
	sub        *redis.Client
	instanceID string
}

type frame struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// BridgeEndpoints returns broker addresses in connection priority order:
// explicit override, environment, in-cluster service name, local fallback.
func BridgeEndpoints(override string) []string {
	endpoints := make([]string, 0, 4)
	seen := make(map[string]bool)
	for _, addr := range []string{
		strings.TrimSpace(override),
		strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		"redis:6379",
		"localhost:6379",
	} {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		endpoints = append(endpoints, addr)
	}
	return endpoints
}

// NewRedisBridge connects to the first reachable endpoint. When none is
// reachable it returns nil: the caller keeps running with local-only
// delivery, which is a capability loss, not an error.
func NewRedisBridge(endpoints []string, password string) *RedisBridge {
	for _, addr := range endpoints {
		pub := redis.NewClient(&redis.Options{Addr: addr, Password: password})
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		err := pub.Ping(ctx).Err()
		cancel()
		if err != nil {
			slog.Warn("realtime bridge endpoint unreachable", "addr", addr, "err", err)
			_ = pub.Close()
			continue
		}
		sub := redis.NewClient(&redis.Options{Addr: addr, Password: password})
		slog.Info("realtime bridge connected", "addr", addr)
		return &RedisBridge{
			pub:        pub,
			sub:        sub,
			instanceID: util.NewID(),
		}
	}
	slog.Warn("no realtime bridge endpoint reachable, broadcasts stay local to this process")
	return nil
}

// start subscribes to the bridge channels and forwards remote frames to
// deliver. Frames published by this instance are skipped: local delivery
// already happened in Hub.Emit.
func (b *RedisBridge) start(deliver func(room string, payload []byte)) {
	pubsub := b.sub.PSubscribe(context.Background(), channelPrefix+"*")
	go func() {
		for msg := range pubsub.Channel() {
			var f frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				slog.Warn("realtime bridge frame undecodable", "channel", msg.Channel, "err", err)
				continue
			}
			if f.Origin == b.instanceID {
				continue
			}
			deliver(f.Room, f.Payload)
		}
	}()
}

// publish replicates a room broadcast to peer processes. Failures degrade to
// local-only delivery for this emit.
func (b *RedisBridge) publish(room string, payload []byte) {
	f := frame{Origin: b.instanceID, Room: room, Payload: payload}
	data, err := json.Marshal(f)
	if err != nil {
		slog.Warn("realtime bridge frame not serializable", "room", room, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.pub.Publish(ctx, channelPrefix+room, data).Err(); err != nil {
		slog.Warn("realtime bridge publish failed, delivery stays local", "room", room, "err", err)
	}
}

// Close releases both broker connections.
func (b *RedisBridge) Close() {
	if b == nil {
		return
	}
	_ = b.pub.Close()
	_ = b.sub.Close()
}
