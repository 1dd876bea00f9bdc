package ringbuf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/ringbuf"
)

func commitString(t *testing.T, r *ringbuf.Ring, s string) {
	t.Helper()
	w, err := r.Reserve()
	require.NoError(t, err)
	_, err = w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, r.Commit(w))
}

func TestReserveCommitPeekAdvanceRoundTrip(t *testing.T) {
	r := ringbuf.New(16, 2)
	commitString(t, r, "hello")

	got, err := r.Peek()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, r.Advance())
	_, err = r.Peek()
	assert.ErrorIs(t, err, ringbuf.ErrEmpty)
}

func TestReserveFailsWhenAllSlotsOccupied(t *testing.T) {
	r := ringbuf.New(8, 2)
	commitString(t, r, "a")
	commitString(t, r, "b")

	_, err := r.Reserve()
	assert.ErrorIs(t, err, ringbuf.ErrFull)
}

func TestReserveFailsWithOutstandingReservation(t *testing.T) {
	r := ringbuf.New(8, 2)
	w1, err := r.Reserve()
	require.NoError(t, err)
	_, err = r.Reserve()
	assert.ErrorIs(t, err, ringbuf.ErrFull)
	require.NoError(t, r.Commit(w1))
}

func TestWriteBeyondSlotSizeFails(t *testing.T) {
	r := ringbuf.New(4, 1)
	w, err := r.Reserve()
	require.NoError(t, err)
	_, err = w.Write([]byte("too long"))
	assert.ErrorIs(t, err, ringbuf.ErrSlotTooSmall)
}

func TestFIFOOrderAcrossWraparound(t *testing.T) {
	r := ringbuf.New(8, 2)
	commitString(t, r, "one")
	commitString(t, r, "two")

	got, err := r.Peek()
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
	require.NoError(t, r.Advance())

	commitString(t, r, "three")

	got, err = r.Peek()
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
	require.NoError(t, r.Advance())

	got, err = r.Peek()
	require.NoError(t, err)
	assert.Equal(t, "three", string(got))
}

func TestResetDiscardsCommittedSlotsAndReservation(t *testing.T) {
	r := ringbuf.New(16, 2)
	commitString(t, r, "keep-me-gone")
	_, err := r.Reserve()
	require.NoError(t, err)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	_, err = r.Peek()
	assert.ErrorIs(t, err, ringbuf.ErrEmpty)

	// A fresh reservation must succeed immediately after reset even
	// though one was outstanding before it.
	w, err := r.Reserve()
	require.NoError(t, err)
	require.NoError(t, r.Commit(w))
}
