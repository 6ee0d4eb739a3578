package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_BurstThenWait(t *testing.T) {
	b := newBucket(2, 2)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }

	assert.Zero(t, b.reserve())
	assert.Zero(t, b.reserve())
	assert.Equal(t, 500*time.Millisecond, b.reserve())

	now = now.Add(time.Second)
	assert.Zero(t, b.reserve())
}

func TestBucket_RefillCapped(t *testing.T) {
	b := newBucket(10, 1)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }

	assert.Zero(t, b.reserve())
	now = now.Add(time.Hour)
	assert.Zero(t, b.reserve())
	assert.Equal(t, 100*time.Millisecond, b.reserve())
}

func TestBucket_NilNeverBlocks(t *testing.T) {
	assert.Nil(t, newBucket(0, 5))
	var b *bucket
	require.NoError(t, b.Wait(context.Background()))
}

func TestBucket_WaitCanceledReturnsToken(t *testing.T) {
	b := newBucket(0.001, 1)
	require.NoError(t, b.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Wait(ctx), context.Canceled)
	assert.InDelta(t, 0, b.tokens, 0.01)
}

func TestRateLimit_PassesThrough(t *testing.T) {
	fake := NewFakeText("ok")
	p := Wrap(fake, RateLimit(1000, 5))
	resp, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, fake.Name(), p.Name())
}
