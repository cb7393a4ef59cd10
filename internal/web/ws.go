package web

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// wsEvent is one message from server to client on the chat websocket.
// Type is "status", "answer", or "error".
type wsEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Answer  *chatAnswer `json:"answer,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// chatAnswer aliases the chat response payload for the websocket envelope.
type chatAnswer = chatResponse

// handleChatWS upgrades to a websocket and answers questions until the
// client disconnects. Each question gets a status event while the pipeline
// runs, then an answer or error event. Errors are per-question: a failed
// answer keeps the connection open for the next question.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.wsOriginPatterns(),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Session ID ties all log lines of one connection together.
	session := uuid.NewString()
	s.logger.Debug("websocket session opened", "session", session)
	defer s.logger.Debug("websocket session closed", "session", session)

	ctx := r.Context()
	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			// Client closed or the request context ended.
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			if err := wsjson.Write(ctx, conn, wsEvent{Type: "error", Error: "question is required"}); err != nil {
				return
			}
			continue
		}

		if err := wsjson.Write(ctx, conn, wsEvent{Type: "status", Message: "Processing your question..."}); err != nil {
			return
		}

		answer, err := s.answerer.AnswerIn(ctx, req.Question, req.Collection)
		if err != nil {
			s.logger.Error("websocket chat failed", "error", err, "session", session, "collection", req.Collection)
			if err := wsjson.Write(ctx, conn, wsEvent{Type: "error", Error: "failed to generate an answer"}); err != nil {
				return
			}
			continue
		}
		if err := wsjson.Write(ctx, conn, wsEvent{
			Type:   "answer",
			Answer: &chatAnswer{Answer: answer, Success: true},
		}); err != nil {
			return
		}
	}
}

// wsOriginPatterns maps the CORS origins onto websocket origin patterns. A
// single "*" means any origin.
func (s *Server) wsOriginPatterns() []string {
	for _, o := range s.origins {
		if o == "*" {
			return []string{"*"}
		}
	}
	patterns := make([]string, 0, len(s.origins))
	for _, o := range s.origins {
		patterns = append(patterns, strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://"))
	}
	return patterns
}
