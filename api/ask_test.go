package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/medkb/medkb/api"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/testutil"
)

func postJSON(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(raw)
}

func TestAskStream_GroundedAnswer(t *testing.T) {
	ret := &fakeRetriever{results: []index.Result{
		{ID: "aspirin.txt:0", Source: "aspirin.txt", Text: "aspirin relieves headache", Score: 0.9},
	}}
	gen := testutil.NewScriptedGenerator("Aspirin ", "helps.")
	ts := newTestServer(t, ret, gen)

	resp, body := postJSON(t, ts.URL+"/api/ask/stream", `{"query": "what helps a headache?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := testutil.ParseSSEEvents(t, body)

	chunks := testutil.FindAllEvents(events, "chunk")
	if len(chunks) != 2 {
		t.Fatalf("got %d chunk events, want 2", len(chunks))
	}
	var streamed strings.Builder
	for _, c := range chunks {
		var data api.SSEChunkData
		if err := json.Unmarshal([]byte(c.Data), &data); err != nil {
			t.Fatal(err)
		}
		streamed.WriteString(data.Text)
	}

	done := testutil.FindEvent(events, "done")
	if done == nil {
		t.Fatal("no done event")
	}
	var final api.SSEDoneData
	if err := json.Unmarshal([]byte(done.Data), &final); err != nil {
		t.Fatal(err)
	}
	if final.Response != "Aspirin helps." || streamed.String() != final.Response {
		t.Errorf("response = %q, streamed = %q", final.Response, streamed.String())
	}
	if len(final.Sources) != 1 || final.Sources[0] != "aspirin.txt" {
		t.Errorf("sources = %v", final.Sources)
	}
	if final.SessionID == "" {
		t.Error("done event missing sessionId")
	}
}

func TestAskStream_SessionContinuity(t *testing.T) {
	ret := &fakeRetriever{}
	gen := testutil.NewScriptedGenerator("answer")
	ts := newTestServer(t, ret, gen)

	_, body := postJSON(t, ts.URL+"/api/ask/stream", `{"query": "first question"}`)
	done := testutil.FindEvent(testutil.ParseSSEEvents(t, body), "done")
	if done == nil {
		t.Fatal("no done event")
	}
	var first api.SSEDoneData
	if err := json.Unmarshal([]byte(done.Data), &first); err != nil {
		t.Fatal(err)
	}

	_, _ = postJSON(t, ts.URL+"/api/ask/stream",
		`{"query": "second question", "sessionId": "`+first.SessionID+`"}`)

	reqs := gen.Requests()
	if len(reqs) != 2 {
		t.Fatalf("generator saw %d requests, want 2", len(reqs))
	}
	if len(reqs[1].History) != 2 {
		t.Fatalf("second request history = %d turns, want 2", len(reqs[1].History))
	}
	if reqs[1].History[0].Content != "first question" {
		t.Errorf("history[0] = %q", reqs[1].History[0].Content)
	}
}

func TestAskStream_MissingQuery(t *testing.T) {
	ts := newTestServer(t, &fakeRetriever{}, testutil.NewScriptedGenerator("never"))

	_, body := postJSON(t, ts.URL+"/api/ask/stream", `{}`)
	events := testutil.ParseSSEEvents(t, body)

	errEvent := testutil.FindEvent(events, "error")
	if errEvent == nil {
		t.Fatal("no error event")
	}
	var data api.SSEErrorData
	if err := json.Unmarshal([]byte(errEvent.Data), &data); err != nil {
		t.Fatal(err)
	}
	if data.Code != "MISSING_QUERY" {
		t.Errorf("code = %q", data.Code)
	}
}

func TestAskStream_UnknownSession(t *testing.T) {
	ts := newTestServer(t, &fakeRetriever{}, testutil.NewScriptedGenerator("never"))

	_, body := postJSON(t, ts.URL+"/api/ask/stream",
		`{"query": "q", "sessionId": "b2f7c3b0-0000-4000-8000-000000000000"}`)
	events := testutil.ParseSSEEvents(t, body)

	errEvent := testutil.FindEvent(events, "error")
	if errEvent == nil {
		t.Fatal("no error event")
	}
	if !strings.Contains(errEvent.Data, "SESSION_NOT_FOUND") {
		t.Errorf("error = %q", errEvent.Data)
	}
}

func TestAskStream_InvalidSessionID(t *testing.T) {
	ts := newTestServer(t, &fakeRetriever{}, testutil.NewScriptedGenerator("never"))

	_, body := postJSON(t, ts.URL+"/api/ask/stream", `{"query": "q", "sessionId": "not-a-uuid"}`)
	events := testutil.ParseSSEEvents(t, body)

	if e := testutil.FindEvent(events, "error"); e == nil || !strings.Contains(e.Data, "INVALID_SESSION_ID") {
		t.Errorf("events = %v, want INVALID_SESSION_ID error", events)
	}
}

func TestAskStream_GenerationFailureAfterChunks(t *testing.T) {
	ret := &fakeRetriever{results: []index.Result{
		{ID: "a.txt:0", Source: "a.txt", Text: "chunk", Score: 0.9},
	}}
	gen := testutil.NewScriptedGenerator("partial text ")
	gen.FailAfter(1, io.ErrUnexpectedEOF)
	ts := newTestServer(t, ret, gen)

	_, body := postJSON(t, ts.URL+"/api/ask/stream", `{"query": "q"}`)
	events := testutil.ParseSSEEvents(t, body)

	// Streamed text stays streamed; the failure follows as an event.
	if chunks := testutil.FindAllEvents(events, "chunk"); len(chunks) != 1 {
		t.Errorf("got %d chunk events, want 1", len(chunks))
	}
	errEvent := testutil.FindEvent(events, "error")
	if errEvent == nil {
		t.Fatal("no error event")
	}
	if !strings.Contains(errEvent.Data, "GENERATION_FAILED") {
		t.Errorf("error = %q", errEvent.Data)
	}
	if testutil.FindEvent(events, "done") != nil {
		t.Error("failed stream must not emit done")
	}
}
