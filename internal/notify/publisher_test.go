package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *Event {
	return &Event{
		OpportunityID: "spatial:88e6a0c2:8ad599c3",
		Kind:          "spatial",
		PathKind:      "v3-two-hop",
		Route:         "WETH>USDC>WETH",
		BorrowToken:   "WETH",
		BorrowAmount:  "10000000000000000000",
		NetProfit:     "1234",
		State:         "confirmed",
		Success:       true,
		Block:         19_000_000,
		Timestamp:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestChannels(t *testing.T) {
	p := NewRedisPublisher("127.0.0.1:1", "", 0, "")
	defer p.Close()

	assert.Equal(t, []string{"arb:executions", "arb:kind:spatial", "arb:state:confirmed"}, p.Channels(sampleEvent()))
}

func TestChannel(t *testing.T) {
	p := NewRedisPublisher("127.0.0.1:1", "", 0, "bot")
	defer p.Close()

	assert.Equal(t, "bot:executions", p.Channel("", ""))
	assert.Equal(t, "bot:kind:triangular", p.Channel("triangular", ""))
	assert.Equal(t, "bot:state:reverted", p.Channel("", "reverted"))
	assert.Equal(t, "bot:state:reverted", p.Channel("triangular", "reverted"))
}

func TestEventLine(t *testing.T) {
	ev := sampleEvent()
	ev.TxHash = "0xfeed"
	assert.Equal(t, "12:00:00 block=19000000 live spatial WETH>USDC>WETH borrow=10000000000000000000 net=1234 state=confirmed tx=0xfeed", ev.Line())

	ev.DryRun = true
	ev.TxHash = ""
	ev.State = "reverted"
	ev.RevertReason = "INSUFFICIENT_OUTPUT_AMOUNT"
	assert.Equal(t, `12:00:00 block=19000000 dry-run spatial WETH>USDC>WETH borrow=10000000000000000000 net=1234 state=reverted revert="INSUFFICIENT_OUTPUT_AMOUNT"`, ev.Line())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, p.Close())
}

func TestPing_Unreachable(t *testing.T) {
	p := NewRedisPublisher("127.0.0.1:1", "", 0, "test")
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, p.Ping(ctx))
}

// needs a live server, e.g. REDIS_TEST_ADDR=localhost:6379
func TestPublishSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	p := NewRedisPublisher(addr, "", 0, "arbtest")
	defer p.Close()
	require.NoError(t, p.Ping(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Event, 1)
	go func() {
		_ = p.Subscribe(ctx, "arbtest:state:confirmed", func(ev *Event) {
			got <- ev
			cancel()
		})
	}()

	// give the subscription time to register
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, p.Publish(ctx, sampleEvent()))

	select {
	case ev := <-got:
		assert.Equal(t, sampleEvent().OpportunityID, ev.OpportunityID)
		assert.Equal(t, uint64(19_000_000), ev.Block)
		assert.True(t, ev.Timestamp.Equal(sampleEvent().Timestamp))
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}
