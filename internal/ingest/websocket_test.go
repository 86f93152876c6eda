package ingest_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/NelyubinaIV/Ogegotovo/internal/ingest"
)

func TestWebSocketSource_DeliversReport(t *testing.T) {
	src := ingest.NewWebSocketSource()
	reports := make(chan ingest.Report, 1)
	if err := src.Start(context.Background(), func(_ context.Context, r ingest.Report) error {
		reports <- r
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	srv := httptest.NewServer(src)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=ABCD-2345"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	msg := `{"type":"oge_result","data":{"token":"ABCD-2345","lessonId":1,"taskId":"l1-t1","score":8,"max":10,"passed":true}}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var ack ingest.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if !ack.OK {
		t.Errorf("ack.OK = false, message = %q", ack.Message)
	}

	select {
	case report := <-reports:
		if report.Token != "ABCD-2345" || report.LessonID != 1 || report.TaskID != "l1-t1" {
			t.Errorf("report = %+v", report)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not receive the report")
	}
}

func TestWebSocketSource_TokenMismatchRejected(t *testing.T) {
	src := ingest.NewWebSocketSource()
	reports := make(chan ingest.Report, 1)
	if err := src.Start(context.Background(), func(_ context.Context, r ingest.Report) error {
		reports <- r
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	srv := httptest.NewServer(src)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=ABCD-2345"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	msg := `{"type":"oge_result","data":{"token":"ZZZZ-9999","lessonId":1,"taskId":"l1-t1","passed":true}}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var ack ingest.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.OK {
		t.Error("ack.OK = true, want rejection for mismatched token")
	}

	select {
	case report := <-reports:
		t.Errorf("handler received report %+v, want none", report)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWebSocketSource_RequiresToken(t *testing.T) {
	src := ingest.NewWebSocketSource()
	srv := httptest.NewServer(src)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400 without a token", resp.StatusCode)
	}
}
