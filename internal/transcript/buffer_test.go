package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendsDistinctSegmentsSpaceJoined(t *testing.T) {
	t.Parallel()

	var b Buffer
	require.True(t, b.Offer("Hello."))
	require.True(t, b.Offer("  how are   you? "))
	require.Equal(t, "Hello how are you", b.Text())
	require.Equal(t, 2, b.Segments())
}

func TestBufferDropsConsecutiveDuplicates(t *testing.T) {
	t.Parallel()

	var b Buffer
	require.True(t, b.Offer("Hello world."))
	require.False(t, b.Offer("hello world"))
	require.False(t, b.Offer("HELLO WORLD!"))
	require.Equal(t, "Hello world", b.Text())
	require.Equal(t, 1, b.Segments())
}

func TestBufferAllowsNonConsecutiveRepeats(t *testing.T) {
	t.Parallel()

	var b Buffer
	require.True(t, b.Offer("yes"))
	require.True(t, b.Offer("no"))
	require.True(t, b.Offer("yes"))
	require.Equal(t, "yes no yes", b.Text())
}

func TestBufferIgnoresEmptySegments(t *testing.T) {
	t.Parallel()

	var b Buffer
	require.False(t, b.Offer(""))
	require.False(t, b.Offer(" ... "))
	require.False(t, b.ShouldAppend(""))
	require.Empty(t, b.Text())
}

func TestBufferPartialNeverCommitted(t *testing.T) {
	t.Parallel()

	var b Buffer
	b.UpdatePartial("hel")
	b.UpdatePartial("hello wor")
	require.Empty(t, b.Text())
	require.Equal(t, "hello wor", b.Partial())
	require.Equal(t, "hello wor", b.Preview())

	b.Offer("hello world")
	b.UpdatePartial("and")
	require.Equal(t, "hello world", b.Text())
	require.Equal(t, "hello world and", b.Preview())
}

func TestBufferResetClearsDuplicateMarker(t *testing.T) {
	t.Parallel()

	var b Buffer
	b.Offer("again")
	b.UpdatePartial("more")
	b.Reset()

	require.Empty(t, b.Text())
	require.Empty(t, b.Partial())
	require.Zero(t, b.Segments())
	require.True(t, b.Offer("again"))
}
