package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobID(t *testing.T) {
	_, err := ParseJobID("")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	id, err := ParseJobID("J1")
	require.NoError(t, err)
	assert.Equal(t, "J1", id.String())
}

func TestNewJobIDIsUnique(t *testing.T) {
	seen := map[JobID]bool{}
	for i := 0; i < 100; i++ {
		id := NewJobID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestAcknowledgmentClone(t *testing.T) {
	var absent Acknowledgment
	assert.Nil(t, absent.Clone())

	a := Acknowledgment{"worker": "w1"}
	c := a.Clone()
	c["worker"] = "w2"
	assert.Equal(t, "w1", a["worker"])

	empty := Acknowledgment{}
	assert.NotNil(t, empty.Clone())
}

func TestAcknowledgmentCloneIsDeep(t *testing.T) {
	meta := map[string]any{"code": 0}
	tags := []any{"a", map[string]any{"k": "v"}}
	a := Acknowledgment{"meta": meta, "tags": tags}

	c := a.Clone()
	meta["code"] = "changed"
	tags[0] = "changed"
	tags[1].(map[string]any)["k"] = "changed"

	assert.Equal(t, Acknowledgment{
		"meta": map[string]any{"code": 0},
		"tags": []any{"a", map[string]any{"k": "v"}},
	}, c)
}

func TestJobJSONKeepsAbsentAndEmptyApart(t *testing.T) {
	absent := Job{Queue: MustParse("orders"), ID: "J1"}
	present := Job{Queue: MustParse("orders"), ID: "J1", Acknowledgment: Acknowledgment{}}

	for _, in := range []Job{absent, present} {
		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out Job
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in.Acknowledged(), out.Acknowledged(), string(data))
	}
}
