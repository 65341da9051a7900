package queue

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "empty", token: "", wantErr: true},
		{name: "plain", token: "orders"},
		{name: "whitespace is kept", token: "  orders "},
		{name: "single space", token: " "},
		{name: "case is kept", token: "Orders"},
		{name: "separators", token: "tenant-a:orders/eu"},
		{name: "unicode", token: "заказы"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
				assert.True(t, q.IsEmpty())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, q.String())
			assert.False(t, q.IsEmpty())
		})
	}
}

func TestTryParse(t *testing.T) {
	q, ok := TryParse("")
	assert.False(t, ok)
	assert.Equal(t, Empty(), q)

	q, ok = TryParse("orders")
	assert.True(t, ok)
	assert.Equal(t, "orders", q.String())
}

func TestMustParsePanicsOnEmpty(t *testing.T) {
	assert.Panics(t, func() { MustParse("") })
	assert.NotPanics(t, func() { MustParse("orders") })
}

func TestEmpty(t *testing.T) {
	assert.True(t, Empty().IsEmpty())
	assert.Equal(t, "", Empty().String())
	assert.Equal(t, QueueID{}, Empty())
}

func TestEqualityAndOrdering(t *testing.T) {
	tokens := []string{"a", "b", "A", "B", "orders", "Orders", "orders ", "ordersX", "zz", "é", "e"}

	for _, a := range tokens {
		for _, b := range tokens {
			qa, qb := MustParse(a), MustParse(b)

			assert.Equal(t, a == b, qa == qb, "%q == %q", a, b)
			assert.Equal(t, a == b, qa.Equal(qb), "%q Equal %q", a, b)
			assert.Equal(t, a == b, SourceStringComparer.Equal(qa, qb), "%q comparer %q", a, b)
			assert.Equal(t, strings.Compare(a, b), qa.Compare(qb), "%q Compare %q", a, b)
			assert.Equal(t, strings.Compare(a, b), Compare(qa, qb), "Compare(%q, %q)", a, b)
			assert.Equal(t, strings.Compare(a, b), SourceStringComparer.Compare(qa, qb), "%q comparer %q", a, b)
			assert.Equal(t, a < b, qa.Less(qb), "%q Less %q", a, b)

			if a == b {
				assert.Equal(t, SourceStringComparer.Hash(qa), SourceStringComparer.Hash(qb))
			}
		}
	}
}

func TestSortIsOrdinal(t *testing.T) {
	ids := []QueueID{MustParse("b"), MustParse("B"), MustParse("a"), MustParse("_")}
	slices.SortFunc(ids, Compare)

	got := make([]string, 0, len(ids))
	for _, q := range ids {
		got = append(got, q.String())
	}
	// ordinal: uppercase sorts before '_' and lowercase
	assert.Equal(t, []string{"B", "_", "a", "b"}, got)
}

func TestUsableAsMapKey(t *testing.T) {
	counts := map[QueueID]int{}
	counts[MustParse("orders")]++
	counts[MustParse("orders")]++
	counts[MustParse("Orders")]++

	assert.Equal(t, 2, counts[MustParse("orders")])
	assert.Equal(t, 1, counts[MustParse("Orders")])
	assert.Len(t, counts, 2)
}

func TestTextRoundTrip(t *testing.T) {
	type envelope struct {
		Queue  QueueID         `json:"queue"`
		Counts map[QueueID]int `json:"counts"`
	}
	in := envelope{
		Queue:  MustParse(" orders "),
		Counts: map[QueueID]int{MustParse("billing"): 3},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"queue":" orders ","counts":{"billing":3}}`, string(data))

	var out envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalTextRejectsEmpty(t *testing.T) {
	var q QueueID
	err := json.Unmarshal([]byte(`""`), &q)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}
