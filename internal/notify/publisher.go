package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sugawarayuuta/sonnet"
)

// Event is one execution attempt as seen by downstream subscribers
type Event struct {
	OpportunityID string    `json:"opportunity_id"`
	Kind          string    `json:"kind"`
	PathKind      string    `json:"path_kind"`
	Route         string    `json:"route"`
	BorrowToken   string    `json:"borrow_token"`
	BorrowAmount  string    `json:"borrow_amount"`
	NetProfit     string    `json:"net_profit"`
	State         string    `json:"state"`
	Success       bool      `json:"success"`
	DryRun        bool      `json:"dry_run"`
	TxHash        string    `json:"tx_hash,omitempty"`
	RevertReason  string    `json:"revert_reason,omitempty"`
	Block         uint64    `json:"block"`
	Timestamp     time.Time `json:"timestamp"`
}

// Line renders ev on one line for terminal output
func (ev *Event) Line() string {
	mode := "live"
	if ev.DryRun {
		mode = "dry-run"
	}
	line := fmt.Sprintf("%s block=%d %s %s %s borrow=%s net=%s state=%s",
		ev.Timestamp.UTC().Format("15:04:05"), ev.Block, mode, ev.Kind, ev.Route, ev.BorrowAmount, ev.NetProfit, ev.State)
	if ev.TxHash != "" {
		line += " tx=" + ev.TxHash
	}
	if ev.RevertReason != "" {
		line += fmt.Sprintf(" revert=%q", ev.RevertReason)
	}
	return line
}

// Publisher fans execution events out to subscribers
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
func (Nop) Close() error                          { return nil }

type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(addr, password string, db int, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "arb"
	}
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: prefix,
	}
}

// Ping checks the connection, callers fall back to Nop when it fails
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Channel names the channel carrying every event, or only those of one
// state or kind when given. State wins when both are set.
func (p *RedisPublisher) Channel(kind, state string) string {
	switch {
	case state != "":
		return fmt.Sprintf("%s:state:%s", p.prefix, state)
	case kind != "":
		return fmt.Sprintf("%s:kind:%s", p.prefix, kind)
	}
	return p.prefix + ":executions"
}

// Channels lists where ev is published
func (p *RedisPublisher) Channels(ev *Event) []string {
	return []string{
		p.Channel("", ""),
		p.Channel(ev.Kind, ""),
		p.Channel("", ev.State),
	}
}

// Publish sends ev to every channel in one pipeline
func (p *RedisPublisher) Publish(ctx context.Context, ev *Event) error {
	data, err := sonnet.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := p.client.Pipeline()
	for _, channel := range p.Channels(ev) {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe delivers decoded events from channel until ctx is done
func (p *RedisPublisher) Subscribe(ctx context.Context, channel string, handler func(*Event)) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := sonnet.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handler(&ev)
		}
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
