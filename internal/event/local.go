package event

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"
)

const groupStripes = 64

// LocalBus delivers events to the subscribers of this process.
//
// Publishes to the same group are serialized, so subscribers observe them in call order.
// Each publish delivers to the membership snapshot taken when it starts.
type LocalBus struct {
	dir   Directory
	locks [groupStripes]sync.Mutex
}

func NewLocalBus(dir Directory) *LocalBus {
	return &LocalBus{dir: dir}
}

func (b *LocalBus) groupLock(group string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(group))
	return &b.locks[h.Sum32()%groupStripes]
}

// Publish never fails: a subscriber that cannot take the event is evicted and the
// remaining subscribers still receive it.
func (b *LocalBus) Publish(ctx context.Context, group string, ev Event) error {
	var failed []string

	mu := b.groupLock(group)
	mu.Lock()
	members := b.dir.MembersOf(group)
	for _, sub := range members {
		if err := sub.Deliver(ev); err != nil {
			log.Warn().Err(err).
				Str("group", group).
				Str("connection_id", sub.ID()).
				Str("event_type", ev.Type).
				Msg("delivery failed, evicting connection")
			failed = append(failed, sub.ID())
		}
	}
	mu.Unlock()

	for _, id := range failed {
		b.dir.Evict(ctx, id)
	}

	log.Debug().
		Str("group", group).
		Str("event_type", ev.Type).
		Int("delivered", len(members)-len(failed)).
		Int("evicted", len(failed)).
		Msg("event published")

	return nil
}
