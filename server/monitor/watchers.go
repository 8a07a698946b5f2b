package monitor

import (
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/gen"
	"github.com/cyclopcam/speedtrap/pkg/segment"
)

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// FrameEvent is sent to watchers after every frame, and once more when a stream finishes
type FrameEvent struct {
	StreamID int64                 `json:"streamID"`
	Result   *analysis.FrameResult `json:"result,omitempty"`
	Finished bool                  `json:"finished,omitempty"`
	Segments []segment.Segment     `json:"segments,omitempty"` // Only populated when Finished is true
}

// Register to receive frame results for a specific stream.
func (m *Monitor) AddWatcher(streamID int64) chan *FrameEvent {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *FrameEvent, WatcherChannelSize)
	m.watchers[streamID] = append(m.watchers[streamID], ch)
	return ch
}

// Unregister from frame results for a specific stream
func (m *Monitor) RemoveWatcher(streamID int64, ch chan *FrameEvent) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.watchers[streamID] {
		if w == ch {
			m.watchers[streamID] = gen.DeleteFromSliceUnordered(m.watchers[streamID], i)
			return
		}
	}
	m.Log.Warnf("RemoveWatcher failed to find channel for stream %v", streamID)
}

// Add a watcher that is interested in all streams
func (m *Monitor) AddWatcherAllStreams() chan *FrameEvent {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *FrameEvent, WatcherChannelSize)
	m.watchersAllStream = append(m.watchersAllStream, ch)
	return ch
}

// Unregister from frame results of all streams
func (m *Monitor) RemoveWatcherAllStreams(ch chan *FrameEvent) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, wch := range m.watchersAllStream {
		if wch == ch {
			m.watchersAllStream = gen.DeleteFromSliceUnordered(m.watchersAllStream, i)
			return
		}
	}
	m.Log.Warnf("RemoveWatcherAllStreams failed to find channel")
}

func (m *Monitor) sendToWatchers(ev *FrameEvent) {
	m.watchersLock.RLock()
	defer m.watchersLock.RUnlock()
	// A slow watcher must not stall the stream, or the other watchers, so we drop frames instead.
	// The final event of a stream ignores the 90% threshold, so that watchers learn that the stream is done.
	send := func(ch chan *FrameEvent, what string) {
		// SYNC-WATCHER-CHANNEL-SIZE
		if !ev.Finished && len(ch) >= cap(ch)*9/10 {
			m.Log.Warnf("Watcher on %v is falling behind. Dropping frame.", what)
			droppedWatcherFramesTotal.Inc()
			return
		}
		select {
		case ch <- ev:
		default:
			m.Log.Warnf("Watcher on %v is full. Dropping event.", what)
			droppedWatcherFramesTotal.Inc()
		}
	}
	for _, ch := range m.watchers[ev.StreamID] {
		send(ch, "one stream")
	}
	for _, ch := range m.watchersAllStream {
		send(ch, "all streams")
	}
}
