package debugerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(fmt.Errorf("boom")))
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := New(NotFound, "frame 42 missing").WithContext("frame_index", 42)
	wrapped := fmt.Errorf("reconstruct: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))

	de, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, 42, de.Context["frame_index"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("i/o timeout")
	err := Wrap(ConnectionLost, cause, "game socket closed", "check game is running")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection_lost")
	assert.Equal(t, []string{"check game is running"}, err.Suggestions)
}
