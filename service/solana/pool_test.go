package solana

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpointPool_Empty(t *testing.T) {
	pool, err := NewEndpointPool(nil)
	assert.ErrorIs(t, err, ErrNoEndpoints)
	assert.Nil(t, pool)
}

func TestEndpointPool_RotationIsCircular(t *testing.T) {
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	pool, err := NewEndpointPool(urls)
	require.NoError(t, err)

	start := pool.Current()
	assert.Equal(t, urls[0], start.URL)

	assert.Equal(t, urls[1], pool.Advance().URL)
	assert.Equal(t, urls[2], pool.Advance().URL)
	assert.Equal(t, start, pool.Advance())
	assert.Equal(t, start, pool.Current())
	assert.Equal(t, uint64(3), pool.Retries())
}

func TestEndpointPool_SingleEndpoint(t *testing.T) {
	pool, err := NewEndpointPool([]string{"https://only.example.com"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.Equal(t, "https://only.example.com", pool.Advance().URL)
	}
	assert.Equal(t, uint64(5), pool.Retries())
}

func TestEndpointPool_ConcurrentAdvance(t *testing.T) {
	pool, err := NewEndpointPool([]string{"https://a.example.com", "https://b.example.com", "https://c.example.com"})
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Advance()
			_ = pool.Current()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(n), pool.Retries())
	assert.Equal(t, "https://b.example.com", pool.Current().URL) // 100 % 3 == 1
}

func TestEndpointPool_EndpointsIsACopy(t *testing.T) {
	pool, err := NewEndpointPool([]string{"https://a.example.com"})
	require.NoError(t, err)

	eps := pool.Endpoints()
	eps[0].URL = "mutated"
	assert.Equal(t, "https://a.example.com", pool.Current().URL)
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://mainnet.helius-rpc.com/?api-key=secret", "helius"},
		{"https://fancy-name.solana-mainnet.quiknode.pro/KEY/", "quiknode"},
		{"https://solana-mainnet.g.alchemy.com/v2/KEY", "alchemy"},
		{"https://api.mainnet-beta.solana.com", "mainnet"},
		{"https://api.devnet.solana.com", "devnet"},
		{"http://127.0.0.1:8899", "127.0.0.1"},
		{"not a url", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, EndpointLabel(tt.url))
		})
	}
}

func TestEndpointPool_AdvanceFrom(t *testing.T) {
	pool, err := NewEndpointPool([]string{"https://a.example.com", "https://b.example.com", "https://c.example.com"})
	require.NoError(t, err)

	failed := pool.Current()
	next, rotated := pool.AdvanceFrom(failed)
	assert.True(t, rotated)
	assert.Equal(t, "https://b.example.com", next.URL)

	// A second failure reported against a stale endpoint leaves the cursor alone.
	next, rotated = pool.AdvanceFrom(failed)
	assert.False(t, rotated)
	assert.Equal(t, "https://b.example.com", next.URL)
	assert.Equal(t, uint64(1), pool.Retries())
}

func TestEndpointPool_ConcurrentAdvanceFromSameEndpoint(t *testing.T) {
	pool, err := NewEndpointPool([]string{"https://a.example.com", "https://b.example.com", "https://c.example.com"})
	require.NoError(t, err)

	failed := pool.Current()
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.AdvanceFrom(failed)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1), pool.Retries())
	assert.Equal(t, "https://b.example.com", pool.Current().URL)
}
