package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"paperqa/internal/rag"
	rag_mocks "paperqa/internal/rag/mocks"
	"paperqa/internal/service"
)

// sseEvents returns the JSON payloads of the data lines in body.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("unexpected line %q", line)
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("event %q is not JSON: %v", payload, err)
		}
		out = append(out, ev)
	}
	return out
}

func eventsOf(evs ...rag.Event) <-chan rag.Event {
	ch := make(chan rag.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestAskStreamHandler_ServeHTTP(t *testing.T) {
	result := sampleResult()

	tests := []struct {
		name       string
		body       string
		mockSetup  func(*rag_mocks.MockEngine)
		wantStatus int
		wantType   string
		check      func(t *testing.T, events []map[string]any)
	}{
		{
			name: "chunks then done",
			body: `{"question":"Show the attention function"}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().
					AskStream(gomock.Any(), rag.AskRequest{ProjectID: "rope", Question: "Show the attention function"}).
					Return(eventsOf(
						rag.Event{Type: rag.EventChunk, Chunk: "The `attention` "},
						rag.Event{Type: rag.EventChunk, Chunk: "function\ncomputes softmax [E1]."},
						rag.Event{Type: rag.EventDone, Result: &result},
					), nil)
			},
			wantStatus: http.StatusOK,
			wantType:   "text/event-stream",
			check: func(t *testing.T, events []map[string]any) {
				if len(events) != 3 {
					t.Fatalf("got %d events, want 3", len(events))
				}
				if events[1]["chunk"] != "function\ncomputes softmax [E1]." {
					t.Errorf("chunk = %q", events[1]["chunk"])
				}
				last := events[2]
				if last["done"] != true || last["answer"] != result.Answer || last["route"] != "code_only" {
					t.Errorf("done event = %v", last)
				}
				if _, ok := last["insufficient_evidence"]; !ok {
					t.Error("done event lacks insufficient_evidence")
				}
			},
		},
		{
			name: "chunk then error",
			body: `{"question":"q"}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().AskStream(gomock.Any(), gomock.Any()).
					Return(eventsOf(
						rag.Event{Type: rag.EventChunk, Chunk: "partial"},
						rag.Event{Type: rag.EventError, Err: fmt.Errorf("%w: LLM request failed (503)", service.ErrExternalService)},
					), nil)
			},
			wantStatus: http.StatusOK,
			wantType:   "text/event-stream",
			check: func(t *testing.T, events []map[string]any) {
				if len(events) != 2 {
					t.Fatalf("got %d events, want 2", len(events))
				}
				msg, _ := events[1]["error"].(string)
				if !strings.Contains(msg, "LLM request failed") {
					t.Errorf("error event = %v", events[1])
				}
				if _, ok := events[1]["done"]; ok {
					t.Error("error event carries done")
				}
			},
		},
		{
			name: "cancelled stream has no terminal event",
			body: `{"question":"q"}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().AskStream(gomock.Any(), gomock.Any()).
					Return(eventsOf(rag.Event{Type: rag.EventChunk, Chunk: "partial"}), nil)
			},
			wantStatus: http.StatusOK,
			wantType:   "text/event-stream",
			check: func(t *testing.T, events []map[string]any) {
				if len(events) != 1 || events[0]["chunk"] != "partial" {
					t.Errorf("events = %v, want the single chunk", events)
				}
			},
		},
		{
			name: "unknown project fails before streaming",
			body: `{"question":"q"}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().AskStream(gomock.Any(), gomock.Any()).
					Return(nil, fmt.Errorf("%w: project rope", service.ErrNotFound))
			},
			wantStatus: http.StatusNotFound,
			wantType:   "application/json",
		},
		{
			name:       "invalid body",
			body:       `{`,
			mockSetup:  func(m *rag_mocks.MockEngine) {},
			wantStatus: http.StatusBadRequest,
			wantType:   "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := rag_mocks.NewMockEngine(ctrl)
			tt.mockSetup(engine)
			handler := NewAskStreamHandler(engine)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/rope/ask-stream", strings.NewReader(tt.body))
			req = withProjectID(req, "rope")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("ServeHTTP() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if tt.check != nil {
				tt.check(t, sseEvents(t, w.Body.String()))
			}
		})
	}
}
