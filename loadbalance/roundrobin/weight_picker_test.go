package roundrobin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eproxy/registry"
)

func TestWeightPicker_Pick(t *testing.T) {
	p := NewWeightPicker(nil)
	instances := []registry.ServiceInstance{
		{Address: "weight-5", Weight: 5},
		{Address: "weight-4", Weight: 4},
		{Address: "weight-3", Weight: 3},
	}
	ctx := context.Background()
	want := []string{"weight-5", "weight-4", "weight-3", "weight-5", "weight-4"}
	var last func(err error)
	for _, w := range want {
		res, err := p.Pick(ctx, instances)
		require.NoError(t, err)
		assert.Equal(t, w, res.Instance.Address)
		last = res.Done
	}

	last(errors.New("mock error"))
	assert.Equal(t, uint32(3), p.nodes["weight-4"].efficientWeight)
	last(nil)
	assert.Equal(t, uint32(4), p.nodes["weight-4"].efficientWeight)
	// success never lifts a node above its registered weight
	last(nil)
	assert.Equal(t, uint32(4), p.nodes["weight-4"].efficientWeight)
}

func TestWeightPicker_Distribution(t *testing.T) {
	p := NewWeightPicker(nil)
	instances := []registry.ServiceInstance{
		{Address: "a", Weight: 2},
		{Address: "b", Weight: 1},
	}
	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		res, err := p.Pick(context.Background(), instances)
		require.NoError(t, err)
		counts[res.Instance.Address]++
	}
	assert.Equal(t, map[string]int{"a": 20, "b": 10}, counts)
}

func TestPicker_Pick(t *testing.T) {
	p := &Picker{}
	instances := []registry.ServiceInstance{{Address: "a"}, {Address: "b"}}
	var got []string
	for i := 0; i < 4; i++ {
		res, err := p.Pick(context.Background(), instances)
		require.NoError(t, err)
		got = append(got, res.Instance.Address)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}
