package grpc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConnectionReusesTarget(t *testing.T) {
	p := NewPool()
	defer p.Close()

	a, err := p.GetConnection("passthrough:///ledger:50051")
	require.NoError(t, err)
	b, err := p.GetConnection("passthrough:///ledger:50051")
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := p.GetConnection("passthrough:///ledger:50052")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestGetConnectionConcurrent(t *testing.T) {
	p := NewPool()
	defer p.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[any]struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.GetConnection("passthrough:///ledger:50051")
			assert.NoError(t, err)
			mu.Lock()
			seen[conn] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1)
}

func TestClosedConnectionIsReplaced(t *testing.T) {
	p := NewPool()
	defer p.Close()

	a, err := p.GetConnection("passthrough:///ledger:50051")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := p.GetConnection("passthrough:///ledger:50051")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
