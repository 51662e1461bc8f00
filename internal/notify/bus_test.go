package notify_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/notify"
)

type collector struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *collector) handle(entries []audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func TestBus_FanOutByEntityType(t *testing.T) {
	bus := notify.NewBus(nil)
	all := &collector{}
	panels := &collector{}
	bus.Subscribe("", all.handle)
	bus.Subscribe(audit.EntityPanel, panels.handle)

	bus.Publish([]audit.Entry{
		{EntityType: audit.EntityUnit, EntityID: "u1", Seq: 1},
		{EntityType: audit.EntityPanel, EntityID: "p1", Seq: 1},
		{EntityType: audit.EntityPanel, EntityID: "p1", Seq: 2},
	})
	bus.Wait()

	require.Equal(t, 3, all.len())
	require.Equal(t, 2, panels.len())
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := notify.NewBus(nil)
	got := &collector{}
	bus.Subscribe("", func([]audit.Entry) { panic("boom") })
	bus.Subscribe("", got.handle)

	require.NotPanics(t, func() {
		bus.Publish([]audit.Entry{{EntityType: audit.EntityScan, EntityID: "s1", Seq: 1}})
		bus.Wait()
	})
	require.Equal(t, 1, got.len())
}

func TestBus_PreservesPublishOrderPerHandler(t *testing.T) {
	bus := notify.NewBus(nil)
	got := &collector{}
	bus.Subscribe(audit.EntityActivity, got.handle)

	for seq := int64(1); seq <= 200; seq++ {
		bus.Publish([]audit.Entry{{EntityType: audit.EntityActivity, EntityID: "a1", Seq: seq}})
	}
	bus.Wait()

	require.Equal(t, 200, got.len())
	for i, e := range got.entries {
		require.Equal(t, int64(i+1), e.Seq)
	}
}

func TestBus_EmptyBatchIsIgnored(t *testing.T) {
	bus := notify.NewBus(nil)
	calls := &collector{}
	bus.Subscribe("", func(entries []audit.Entry) {
		calls.handle(append(entries, audit.Entry{}))
	})
	bus.Publish(nil)
	bus.Wait()
	require.Zero(t, calls.len())
}
