package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMemoryStrictlyIncreasingPerKey(t *testing.T) {
	issuer := NewMemory()
	ctx := context.Background()

	var prev int64
	for i := 0; i < 10; i++ {
		seq, err := issuer.Next(ctx, 1, 1)
		require.NoError(t, err)
		require.Greater(t, seq, prev)
		prev = seq
	}

	// A different pair starts its own series.
	seq, err := issuer.Next(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}

func TestMemoryRejectsInvalidKey(t *testing.T) {
	issuer := NewMemory()
	_, err := issuer.Next(context.Background(), 0, 1)
	require.Error(t, err)
	_, err = issuer.Next(context.Background(), 1, 0)
	require.Error(t, err)
}

func TestMemoryNoDuplicatesUnderConcurrency(t *testing.T) {
	issuer := NewMemory()
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var mu sync.Mutex
	var issued []int64

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				seq, err := issuer.Next(ctx, 7, 3)
				if err != nil {
					return err
				}
				mu.Lock()
				issued = append(issued, seq)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, issued, workers*perWorker)
	sort.Slice(issued, func(i, j int) bool { return issued[i] < issued[j] })
	for i, seq := range issued {
		require.Equal(t, int64(i+1), seq, "sequence must be dense and duplicate free in-memory")
	}
}
