package groutine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroup_WaitsForAll(t *testing.T) {
	var g Group
	var ran atomic.Int32
	names := make(chan string, 3)

	for _, n := range []string{"a", "b", "c"} {
		g.Go(context.Background(), "worker-"+n, func(ctx context.Context) {
			names <- GetName(ctx)
			ran.Add(1)
		})
	}
	g.Wait()
	close(names)

	assert.Equal(t, int32(3), ran.Load(), "Wait MUST return only after every goroutine finished")

	var got []string
	for n := range names {
		got = append(got, n)
	}
	assert.ElementsMatch(t, []string{"worker-a", "worker-b", "worker-c"}, got)
}

func TestGetName_NoName(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	assert.Empty(t, GetName(nil)) //nolint:staticcheck // nil context is handled explicitly
}
