package override

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"grimm.is/holdover/internal/policy"
)

// MockRecordStore is a mock implementation of RecordStore.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Save(ctx context.Context, prior string, ttl time.Duration) (*SavedOverride, error) {
	args := m.Called(ctx, prior, ttl)
	rec, _ := args.Get(0).(*SavedOverride)
	return rec, args.Error(1)
}

func (m *MockRecordStore) Load(ctx context.Context) (*SavedOverride, error) {
	args := m.Called(ctx)
	rec, _ := args.Get(0).(*SavedOverride)
	return rec, args.Error(1)
}

func (m *MockRecordStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// gatedResource blocks Get until the gate is opened, so a transition can be
// held in flight.
type gatedResource struct {
	*policy.Memory
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedResource(initial string) *gatedResource {
	return &gatedResource{
		Memory:  policy.NewMemory(initial),
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (g *gatedResource) Get(ctx context.Context) (string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.Memory.Get(ctx)
}

// overlapResource records the highest number of concurrent calls it saw.
type overlapResource struct {
	*policy.Memory
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (o *overlapResource) enter() func() {
	n := o.active.Add(1)
	for {
		max := o.maxSeen.Load()
		if n <= max || o.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { o.active.Add(-1) }
}

func (o *overlapResource) Get(ctx context.Context) (string, error) {
	defer o.enter()()
	return o.Memory.Get(ctx)
}

func (o *overlapResource) Set(ctx context.Context, v string) error {
	defer o.enter()()
	return o.Memory.Set(ctx, v)
}
