package recruit

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// keyLock — реестр мьютексов по ID заявителя. Замки создаются лениво и живут
// до конца процесса. Захват прерывается отменой ctx.
type keyLock struct {
	mu    sync.Mutex
	slots map[snowflake.ID]chan struct{}
}

func newKeyLock() *keyLock {
	return &keyLock{slots: map[snowflake.ID]chan struct{}{}}
}

func (k *keyLock) slot(id snowflake.ID) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[id] = ch
	}
	return ch
}

// Lock берёт замок для id. unlock нужно вызвать ровно один раз.
func (k *keyLock) Lock(ctx context.Context, id snowflake.ID) (unlock func(), err error) {
	ch := k.slot(id)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
