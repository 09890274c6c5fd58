package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/gatherpoint/gatherpoint/internal/services/events/domain"
)

const wsReplayBatch = 200

type wsFrame struct {
	Type   string         `json:"type"`
	Change *changePayload `json:"change,omitempty"`
}

// handleWS streams lifecycle changes for one scope. The client picks the
// scope with ?scope=event:<id> or ?scope=community:<id> and may resume with
// ?after_seq=<n>; missed changes are replayed from the durable log before
// live delivery starts, so a reconnecting client sees every change at least
// once.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if !validScope(scope) {
		http.Error(w, "scope must be event:<id> or community:<id>", http.StatusBadRequest)
		return
	}
	afterSeq, err := queryInt64(r, "after_seq", 0)
	if err != nil {
		http.Error(w, "after_seq is not a number", http.StatusBadRequest)
		return
	}

	handler := websocket.Handler(func(conn *websocket.Conn) {
		s.serveWSConn(conn, scope, afterSeq)
	})
	handler.ServeHTTP(w, r)
}

func validScope(scope string) bool {
	kind, id, ok := strings.Cut(scope, ":")
	if !ok || strings.TrimSpace(id) == "" {
		return false
	}
	return kind == "event" || kind == "community"
}

func (s *Server) serveWSConn(conn *websocket.Conn, scope string, afterSeq int64) {
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if request := conn.Request(); request != nil {
		var requestCancel context.CancelFunc
		ctx, requestCancel = context.WithCancel(request.Context())
		defer requestCancel()
	}

	// Drain the client side so a closed peer ends the stream.
	go func() {
		defer cancel()
		buffer := make([]byte, 512)
		for {
			if _, err := conn.Read(buffer); err != nil {
				return
			}
		}
	}()

	sub := s.hub.Subscribe(scope)
	defer sub.Close()

	encoder := json.NewEncoder(conn)

	// Subscribe first, then replay: anything committed between the replay
	// read and the first live delivery arrives on both paths and is
	// deduplicated by sequence number.
	lastSeq, err := s.replayChanges(ctx, encoder, scope, afterSeq)
	if err != nil {
		return
	}

	// Lagged() stays closed once the hub drops a delivery; nil the local
	// copy after the catch-up replay so the select does not spin on it.
	lagged := sub.Lagged()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lagged:
			lagged = nil
			if err := encoder.Encode(wsFrame{Type: "lagged"}); err != nil {
				return
			}
			lastSeq, err = s.replayChanges(ctx, encoder, scope, lastSeq)
			if err != nil {
				return
			}
		case change, ok := <-sub.Events():
			if !ok {
				return
			}
			if change.Seq <= lastSeq {
				continue
			}
			payload := toChangePayload(change)
			if err := encoder.Encode(wsFrame{Type: "change", Change: &payload}); err != nil {
				return
			}
			lastSeq = change.Seq
		}
	}
}

func (s *Server) replayChanges(ctx context.Context, encoder *json.Encoder, scope string, afterSeq int64) (int64, error) {
	kind, id, _ := strings.Cut(scope, ":")
	lastSeq := afterSeq
	for {
		var changes []domain.ChangeEvent
		var err error
		if kind == "community" {
			changes, err = s.service.ListCommunityChangesAfter(ctx, id, lastSeq, wsReplayBatch)
		} else {
			changes, err = s.service.ListEventChangesAfter(ctx, id, lastSeq, wsReplayBatch)
		}
		if err != nil {
			log.Printf("events: websocket replay for %s: %v", scope, err)
			return lastSeq, err
		}
		for _, change := range changes {
			payload := toChangePayload(change)
			if err := encoder.Encode(wsFrame{Type: "change", Change: &payload}); err != nil {
				return lastSeq, err
			}
			lastSeq = change.Seq
		}
		if len(changes) < wsReplayBatch {
			return lastSeq, nil
		}
	}
}
