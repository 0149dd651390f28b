package afd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageIDStates(t *testing.T) {
	t.Parallel()

	var none PageID
	assert.True(t, none.IsZero())
	assert.Equal(t, "", none.String())

	redirected := RedirectedPageID()
	assert.True(t, redirected.Redirected())
	assert.Equal(t, RedirectedMarker, redirected.String())
	_, ok := redirected.Value()
	assert.False(t, ok)

	numeric := NumericPageID(4242)
	id, ok := numeric.Value()
	require.True(t, ok)
	assert.Equal(t, int64(4242), id)
	assert.Equal(t, "4242", numeric.String())
}

func TestParsePageID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want PageID
	}{
		{raw: "", want: PageID{}},
		{raw: "REDIRECTED", want: RedirectedPageID()},
		{raw: "17", want: NumericPageID(17)},
		{raw: "17.0", want: NumericPageID(17)},
	}
	for _, tt := range tests {
		got, err := ParsePageID(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := ParsePageID("abc")
	assert.Error(t, err)
}

func TestDiscussionNaming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Wikipedia:Articles_for_deletion/Foo Bar", DiscussionTitle("Foo Bar"))
	assert.Equal(t, "Wikipedia:Articles_for_deletion/Foo_Bar", DiscussionPath("Foo Bar"))
	assert.Equal(t, "https://en.wikipedia.org/wiki/Wikipedia:Articles_for_deletion/Foo_Bar",
		PageURL(DiscussionTitle("Foo Bar")))
}
