package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerInvalidate(t *testing.T) {
	tr := NewTracker()
	podcasts, cancelPodcasts := tr.Subscribe(TablePodcasts, TableFollowed)
	defer cancelPodcasts()
	episodes, cancelEpisodes := tr.Subscribe(TableEpisodes)
	defer cancelEpisodes()

	tr.Invalidate(TableFollowed)

	assert.Len(t, podcasts, 1)
	assert.Len(t, episodes, 0)
}

func TestTrackerConflates(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe(TableEpisodes)
	defer cancel()

	for i := 0; i < 10; i++ {
		tr.Invalidate(TableEpisodes)
	}
	assert.Len(t, ch, 1)
}

func TestTrackerCancel(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe(TableEpisodes)
	assert.Equal(t, 1, tr.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, tr.Subscribers())

	tr.Invalidate(TableEpisodes)
	assert.Len(t, ch, 0)
}
