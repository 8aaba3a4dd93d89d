package id

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinels(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.False(t, Root.IsNil())
	assert.True(t, Root.IsRoot())
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", Nil.String())
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", Root.String())

	var zero ID
	assert.Equal(t, Nil, zero)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "canonical", input: "9a0364b9-e99b-4a5e-a2b6-bb0da1e1ba8e", want: "9a0364b9-e99b-4a5e-a2b6-bb0da1e1ba8e"},
		{name: "upper case normalized", input: "9A0364B9-E99B-4A5E-A2B6-BB0DA1E1BA8E", want: "9a0364b9-e99b-4a5e-a2b6-bb0da1e1ba8e"},
		{name: "whitespace trimmed", input: "  00000000-0000-0000-0000-000000000001 ", want: Root.String()},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not-an-id", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, got.IsNil())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestJSON(t *testing.T) {
	orig := MustParse("9a0364b9-e99b-4a5e-a2b6-bb0da1e1ba8e")

	data, err := json.Marshal(map[string]ID{"id": orig})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"9a0364b9-e99b-4a5e-a2b6-bb0da1e1ba8e"}`, string(data))

	var decoded map[string]ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded["id"])

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestRandomGenerator(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		next := gen.New()
		require.False(t, next.IsNil())
		require.False(t, next.IsRoot())
		require.False(t, seen[next], "duplicate id generated")
		seen[next] = true
	}
}

func TestFromName(t *testing.T) {
	ns := MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	a := FromName(ns, "robot-1/camera")
	b := FromName(ns, "robot-1/camera")
	c := FromName(ns, "robot-2/camera")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, uint8(5), uint8(a.UUID().Version()))
}

func TestSequenceGenerator(t *testing.T) {
	first := MustParse("11111111-1111-4111-8111-111111111111")
	second := MustParse("22222222-2222-4222-8222-222222222222")
	gen := NewSequenceGenerator(first, second)

	assert.Equal(t, first, gen.New())
	assert.Equal(t, second, gen.New())
	assert.False(t, gen.New().IsNil())
}

func TestLess(t *testing.T) {
	a := MustParse("11111111-1111-4111-8111-111111111111")
	b := MustParse("22222222-2222-4222-8222-222222222222")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
