package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/internal/metrics"
	"github.com/opsmind/opsmind/orchestration"
	"github.com/opsmind/opsmind/session"
	"github.com/opsmind/opsmind/types"
)

type chatRequest struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id,omitempty"`
}

type chatMetadata struct {
	AgentUsed string   `json:"agent_used"`
	ToolsUsed []string `json:"tools_used"`
	ThreadID  string   `json:"thread_id"`
}

type chatResponse struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	Metadata chatMetadata `json:"metadata"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, threadID, status, err := s.prepareChat(r)
	if err != nil {
		writeError(w, status, err)
		return
	}

	result, failed, err := s.runChat(r, threadID, req.Content, nil)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if failed {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.RunsTotal.WithLabelValues("completed").Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, threadID, status, err := s.prepareChat(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendSSE := func(eventType string, data any) {
		b, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, b)
		flusher.Flush()
	}

	sendSSE("start", map[string]string{"thread_id": threadID})

	result, failed, err := s.runChat(r, threadID, req.Content, func(msg types.Message) {
		sendSSE("message", map[string]string{"content": msg.Content, "agent": msg.Name})
	})
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		sendSSE("error", map[string]string{"error": err.Error()})
		return
	}
	if failed {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.RunsTotal.WithLabelValues("completed").Inc()
	}
	sendSSE("done", result)
}

// prepareChat validates the request and resolves the session thread.
func (s *Server) prepareChat(r *http.Request) (chatRequest, string, int, error) {
	var req chatRequest
	if r.Method != http.MethodPost {
		return req, "", http.StatusMethodNotAllowed, fmt.Errorf("method not allowed")
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "", http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return req, "", http.StatusBadRequest, fmt.Errorf("content is required")
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		sess, err := s.cfg.Sessions.CreateSession(r.Context(), nil)
		if err != nil {
			return req, "", http.StatusInternalServerError, fmt.Errorf("failed to create session: %w", err)
		}
		threadID = sess.ID
	} else if _, err := s.cfg.Sessions.GetSession(r.Context(), threadID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return req, "", http.StatusNotFound, fmt.Errorf("thread %q not found", threadID)
		}
		return req, "", http.StatusInternalServerError, err
	}
	return req, threadID, 0, nil
}

// runChat drives one graph run, forwarding intermediate assistant messages
// to onMessage when set, and persists the exchange to the session store.
// A failed run is still a successful chat exchange: the failure text comes
// back as the response content with failed set.
func (s *Server) runChat(r *http.Request, threadID, content string, onMessage func(types.Message)) (chatResponse, bool, error) {
	log := logging.GetLogger("server")
	ctx := r.Context()

	if err := s.cfg.Sessions.AppendMessages(ctx, threadID, []types.Message{
		{Role: types.RoleUser, Content: content},
	}); err != nil {
		return chatResponse{}, false, fmt.Errorf("failed to record user message: %w", err)
	}

	runner, err := s.cfg.NewRunner(threadID)
	if err != nil {
		return chatResponse{}, false, fmt.Errorf("failed to build executor: %w", err)
	}
	events, err := runner.Stream(ctx, content)
	if err != nil {
		return chatResponse{}, false, err
	}

	var (
		lastState graph.State
		haveState bool
		output    string
		failed    bool
		seen      int
	)
	for ev := range events {
		if ev.Done {
			if ev.Err != nil {
				return chatResponse{}, false, ev.Err
			}
			output = ev.Output
			failed = ev.Failed
			continue
		}
		lastState = ev.State
		haveState = true
		if onMessage == nil {
			continue
		}
		conv, convErr := orchestration.LoadConversation(&lastState)
		if convErr != nil {
			continue
		}
		for ; seen < len(conv.Messages); seen++ {
			msg := conv.Messages[seen]
			if msg.Role == types.RoleAssistant {
				onMessage(msg)
			}
		}
	}

	response := chatResponse{
		ID:      uuid.NewString(),
		Content: output,
		Metadata: chatMetadata{
			ToolsUsed: []string{},
			ThreadID:  threadID,
		},
	}

	if haveState {
		conv, convErr := orchestration.LoadConversation(&lastState)
		if convErr == nil {
			response.Metadata.AgentUsed = strings.Join(conv.AgentsUsed, ",")
			if s.cfg.ToolsFor != nil {
				for _, agent := range conv.AgentsUsed {
					response.Metadata.ToolsUsed = append(response.Metadata.ToolsUsed, s.cfg.ToolsFor(agent)...)
				}
			}
			var assistant []types.Message
			for _, msg := range conv.Messages {
				if msg.Role == types.RoleAssistant {
					assistant = append(assistant, msg)
				}
			}
			if err := s.cfg.Sessions.AppendMessages(ctx, threadID, assistant); err != nil {
				log.Warn("failed to persist assistant messages", "thread_id", threadID, "error", err)
			}
		}
	}

	if failed && output != "" {
		// Failure text is part of the conversation too.
		if err := s.cfg.Sessions.AppendMessages(ctx, threadID, []types.Message{
			{Role: types.RoleAssistant, Content: output},
		}); err != nil {
			log.Warn("failed to persist failure message", "thread_id", threadID, "error", err)
		}
	}
	return response, failed, nil
}
