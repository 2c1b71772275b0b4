package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareSameKind(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int less", Int(1), Int(2), -1},
		{"int equal", Int(5), Int(5), 0},
		{"float greater", Float(2.5), Float(1.5), 1},
		{"string", String("apple"), String("banana"), -1},
		{"bool false first", Bool(false), Bool(true), -1},
		{"time", NewTime(t0), NewTime(t0.Add(time.Second)), -1},
		{"time equal across zones", NewTime(t0), NewTime(t0.In(time.FixedZone("X", 3600))), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareIncomparable(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
	}{
		{"int vs float", Int(1), Float(1)},
		{"string vs int", String("1"), Int(1)},
		{"null left", Null{}, Int(1)},
		{"null right", Int(1), Null{}},
		{"lists", List{}, List{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.a, tt.b)
			assert.ErrorIs(t, err, ErrIncomparable)
		})
	}
}

func TestOrderNullFirst(t *testing.T) {
	assert.Equal(t, -1, Order(Null{}, Int(-100)))
	assert.Equal(t, 1, Order(String(""), Null{}))
	assert.Equal(t, 0, Order(nil, Null{}))
}

func TestOrderGroupsByKind(t *testing.T) {
	assert.Equal(t, -1, Order(Int(100), String("a")))
	assert.Equal(t, 1, Order(String("a"), Bool(true)))
}

func TestOrderLists(t *testing.T) {
	assert.Equal(t, -1, Order(List{Int(1)}, List{Int(1), Int(2)}))
	assert.Equal(t, 1, Order(List{Int(3)}, List{Int(1), Int(2)}))
	assert.Equal(t, 0, Order(List{String("x")}, List{String("x")}))
}

func TestEqual(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Equal(Null{}, nil))
	assert.False(t, Equal(Null{}, Int(0)))
	assert.False(t, Equal(Int(1), Float(1)), "no numeric coercion")
	assert.True(t, Equal(NewTime(t0), NewTime(t0.Local())))
	assert.True(t, Equal(
		Object{"a": List{Int(1), Object{"b": String("c")}}},
		Object{"a": List{Int(1), Object{"b": String("c")}}},
	))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"b": Int(1)}))
	assert.False(t, Equal(List{Int(1)}, List{Int(1), Int(1)}))
}
