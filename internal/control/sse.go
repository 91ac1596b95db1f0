package control

import (
	"encoding/json"
	"net/http"

	"github.com/bastionhq/bastion/internal/domain"
)

// streamEvents pushes coordinator snapshots as server-sent events, one
// per tick. A slow consumer drops snapshots rather than stalling the
// coordinator; the next tick carries fresh state anyway.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshots := make(chan domain.Snapshot, 8)
	unsubscribe := s.coord.Subscribe(func(snap domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})
	defer unsubscribe()

	// Initial state so the client does not wait a full tick.
	writeEvent(w, flusher, s.coord.Snapshot())

	for {
		select {
		case snap := <-snapshots:
			writeEvent(w, flusher, snap)
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, snap domain.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}
