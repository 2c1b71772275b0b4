package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check via assignment
	var _ Value = Null{}
	var _ Value = Bool(true)
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = String("test")
	var _ Value = NewTime(time.Unix(0, 0))
	var _ Value = List{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "timestamp", KindTime.String())
	assert.Equal(t, "null", KindNull.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"string", KindString},
		{"int", KindInt},
		{"integer", KindInt},
		{"float", KindFloat},
		{"bool", KindBool},
		{"timestamp", KindTime},
		{"time", KindTime},
		{"list", KindList},
		{"object", KindObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseKind("decimal")
	assert.Error(t, err)
}

func TestKindScalar(t *testing.T) {
	assert.True(t, KindString.Scalar())
	assert.True(t, KindTime.Scalar())
	assert.False(t, KindList.Scalar())
	assert.False(t, KindObject.Scalar())
	assert.False(t, KindNull.Scalar())
}

func TestObjectGetMissingIsNull(t *testing.T) {
	obj := Object{"a": Int(1)}
	assert.Equal(t, Int(1), obj.Get("a"))
	assert.Equal(t, Null{}, obj.Get("b"))
}

func TestObjectID(t *testing.T) {
	id, ok := Object{IDField: String("b1")}.ID()
	assert.True(t, ok)
	assert.Equal(t, ID("b1"), id)

	_, ok = Object{IDField: String("")}.ID()
	assert.False(t, ok, "empty id is not an id")

	_, ok = Object{IDField: Int(1)}.ID()
	assert.False(t, ok, "non-string id is not an id")
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{
		"tags": List{String("a")},
		"meta": Object{"n": Int(1)},
	}
	cp := orig.Clone()

	cp["tags"].(List)[0] = String("changed")
	cp["meta"].(Object)["n"] = Int(2)

	assert.Equal(t, String("a"), orig["tags"].(List)[0])
	assert.Equal(t, Int(1), orig["meta"].(Object)["n"])
}

func TestObjectMergeIsShallow(t *testing.T) {
	orig := Object{"title": String("A"), "meta": Object{"x": Int(1), "y": Int(2)}}
	merged := orig.Merge(Object{"meta": Object{"x": Int(9)}, "year": Int(2001)})

	assert.Equal(t, Object{"x": Int(9)}, merged["meta"], "nested objects are replaced, not merged")
	assert.Equal(t, Int(2001), merged["year"])
	assert.Equal(t, String("A"), merged["title"])
	assert.NotContains(t, orig, "year", "merge must not mutate the receiver")
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "B": Int(3), "\uE000": Int(4), "\U00010000": Int(5)}
	// UTF-16 order: uppercase before lowercase; surrogate pairs (0xD800) before 0xE000
	assert.Equal(t, []string{"B", "a", "b", "\U00010000", "\uE000"}, obj.SortedKeys())
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(String("")))
	assert.False(t, IsNull(Int(0)))
}
