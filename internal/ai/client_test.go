package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

// newTestServer returns a server that replies with the given message content
// and records the last request body.
func newTestServer(t *testing.T, content string, lastReq *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if lastReq != nil {
			if err := json.NewDecoder(r.Body).Decode(lastReq); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		VisionModel:    "vision-model",
		SummarizeModel: "summarize-model",
	})
}

func TestExtractPosterMetadata(t *testing.T) {
	metadata := `{"bandNames":["Alpha","Beta"],"events":[{"venue":"The Spot","location":"New York","date":"2024-06-01T20:00:00Z","isUpcoming":true}],"tourName":"Alpha Tour","slug":"alpha-tour-2024"}`

	var lastReq chatRequest
	server := newTestServer(t, metadata, &lastReq)
	defer server.Close()

	client := newTestClient(server.URL)
	meta, err := client.ExtractPosterMetadata(context.Background(), "data:image/jpeg;base64,AAAA")
	if err != nil {
		t.Fatalf("ExtractPosterMetadata() error = %v", err)
	}

	if len(meta.BandNames) != 2 || meta.BandNames[0] != "Alpha" {
		t.Errorf("BandNames = %v", meta.BandNames)
	}
	if meta.Slug != "alpha-tour-2024" {
		t.Errorf("Slug = %q, want %q", meta.Slug, "alpha-tour-2024")
	}
	if meta.TourName != "Alpha Tour" {
		t.Errorf("TourName = %q", meta.TourName)
	}
	if len(meta.Events) != 1 || !meta.Events[0].IsUpcoming {
		t.Errorf("Events = %+v", meta.Events)
	}

	if lastReq.Model != "vision-model" {
		t.Errorf("request model = %q", lastReq.Model)
	}
	if lastReq.ResponseFormat == nil || lastReq.ResponseFormat.Type != "json_schema" {
		t.Errorf("ResponseFormat = %+v", lastReq.ResponseFormat)
	}
}

func TestInferRotation(t *testing.T) {
	var lastReq chatRequest
	server := newTestServer(t, `{"currentAssumedClockwiseRotation":"270","degreesToRotate":"90"}`, &lastReq)
	defer server.Close()

	client := newTestClient(server.URL)
	instr, err := client.InferRotation(context.Background(), "https://example.com/poster.jpg")
	if err != nil {
		t.Fatalf("InferRotation() error = %v", err)
	}
	if instr.DegreesToRotate != "90" {
		t.Errorf("DegreesToRotate = %q, want %q", instr.DegreesToRotate, "90")
	}
}

func TestSummarize(t *testing.T) {
	var lastReq chatRequest
	server := newTestServer(t, "  A loud, joyful live act.  ", &lastReq)
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Summarize(context.Background(), "A very long artist biography.")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "A loud, joyful live act." {
		t.Errorf("Summarize() = %q", got)
	}
	if lastReq.Model != "summarize-model" {
		t.Errorf("request model = %q", lastReq.Model)
	}
	if len(lastReq.Messages) != 2 || lastReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", lastReq.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "api error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			},
		},
		{
			name: "empty choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantErr: ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.Summarize(context.Background(), "text")
			if err == nil {
				t.Fatal("Summarize() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
