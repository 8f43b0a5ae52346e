// Package mockprovider is an in-memory OpenAI-compatible chat completion server for
// tests and local end-to-end runs.
package mockprovider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Call records a completion request made to the mock service.
type Call struct {
	Method string
	Path   string
	Model  string
	Prompt string
}

type scripted struct {
	status int
	text   string
}

// Server answers POST /chat/completions (with or without a /v1 prefix).
//
// Scripted replies are served first, in order. Once the script is exhausted the
// responder answers; the default responder returns "{}".
type Server struct {
	mu sync.Mutex

	calls  []Call
	script []scripted

	respond func(prompt string) string

	expectedAuthorization string
	nextID                int
}

// New constructs a new mock server.
func New() *Server {
	return &Server{
		respond: func(string) string { return "{}" },
		nextID:  1,
	}
}

// RequireBearerToken enforces that requests include an Authorization header matching the token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// Reply queues a successful reply with text as the assistant message.
func (s *Server) Reply(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scripted{status: http.StatusOK, text: text})
}

// Fail queues an OpenAI-style error response with the given HTTP status.
func (s *Server) Fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scripted{status: status})
}

// Respond sets the responder used once the script is exhausted.
func (s *Server) Respond(fn func(prompt string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func(string) string { return "{}" }
	}
	s.respond = fn
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		writeError(w, http.StatusUnauthorized, "invalid_request_error", "unauthorized")
		return false
	}
	return true
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("decode request: %v", err))
		return
	}
	prompt := lastUserMessage(req.Messages)

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Model: req.Model, Prompt: prompt})
	var next scripted
	if len(s.script) > 0 {
		next = s.script[0]
		s.script = s.script[1:]
	} else {
		next = scripted{status: http.StatusOK, text: s.respond(prompt)}
	}
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	if next.status != http.StatusOK {
		writeError(w, next.status, "server_error", http.StatusText(next.status))
		return
	}

	resp := openai.ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", id),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: next.text,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     len(strings.Fields(prompt)),
			CompletionTokens: len(strings.Fields(next.text)),
			TotalTokens:      len(strings.Fields(prompt)) + len(strings.Fields(next.text)),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func lastUserMessage(msgs []openai.ChatCompletionMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == openai.ChatMessageRoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, errType, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(openai.ErrorResponse{Error: &openai.APIError{
		Message: msg,
		Type:    errType,
	}})
}
