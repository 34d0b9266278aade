package redisad

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"friendly_eats/internal/domain"
)

// Broker carries change notifications over redis pub/sub so every API
// process sees writes made by the others.
type Broker struct{ c *redis.Client }

func NewBroker(c *redis.Client) *Broker { return &Broker{c: c} }

func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.c.Publish(ctx, topic, payload).Err()
}

// Subscribe returns once redis has confirmed the subscription, so a publish
// made after it returns is always delivered.
func (b *Broker) Subscribe(ctx context.Context, topic string) (domain.Feed, error) {
	ps := b.c.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	f := &feed{ps: ps, out: make(chan []byte, 16), done: make(chan struct{})}
	go f.pump()
	return f, nil
}

type feed struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (f *feed) pump() {
	defer close(f.out)
	in := f.ps.Channel()
	for {
		select {
		case <-f.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case f.out <- []byte(m.Payload):
			case <-f.done:
				return
			}
		}
	}
}

func (f *feed) Messages() <-chan []byte { return f.out }

func (f *feed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.ps.Close()
	})
	return err
}

var _ domain.Broker = (*Broker)(nil)
