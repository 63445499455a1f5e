package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogSink_SetTracksActiveCheck(t *testing.T) {
	s := NewLogSink()
	s.Set("osd.1", "down")
	assert.Equal(t, map[string]string{"osd.1": "down"}, s.Active())
}

func TestLogSink_SetOverwritesDetailForSameName(t *testing.T) {
	s := NewLogSink()
	s.Set("osd.1", "down")
	s.Set("osd.1", "flapping")
	assert.Equal(t, map[string]string{"osd.1": "flapping"}, s.Active())
}

func TestLogSink_ClearRemovesCheck(t *testing.T) {
	s := NewLogSink()
	s.Set("osd.1", "down")
	s.Clear("osd.1")
	assert.Empty(t, s.Active())
}

func TestLogSink_ClearUnknownCheckIsNoop(t *testing.T) {
	s := NewLogSink()
	s.Clear("never-set")
	assert.Empty(t, s.Active())
}

func TestLogSink_ActiveIsASnapshotNotALiveView(t *testing.T) {
	s := NewLogSink()
	s.Set("osd.1", "down")
	snap := s.Active()
	s.Set("osd.2", "down")
	assert.Len(t, snap, 1, "snapshot must not observe later mutations")
	assert.Len(t, s.Active(), 2)
}
