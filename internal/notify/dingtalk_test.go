package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/review"
	"github.com/dshills/vigil/internal/svn"
	"go.uber.org/zap"
)

func testConfigWithURL(webhookURL string) config.Config {
	cfg := config.Default()
	cfg.DingTalk.WebhookURL = webhookURL
	return cfg
}

func notifyCommit() svn.Commit {
	return svn.Commit{
		Revision: "501533",
		Author:   "alice",
		Date:     time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Message:  "fix boundary check",
		ChangedFiles: []svn.FileChange{
			{Path: "/trunk/src/server.go", Action: "M", Kind: "file"},
		},
	}
}

func testOutcome() *review.Outcome {
	return &review.Outcome{
		Revision: "501533",
		Score:    8,
		Summary:  "solid change",
		Comments: []review.Comment{
			{File: "server.go", Line: "10", Type: "warning", Comment: "check the error"},
		},
		Suggestions: []string{"add a test"},
		Risks:       []string{"shutdown race"},
	}
}

func TestSend(t *testing.T) {
	var got dingtalkMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.Write([]byte(`{"errcode": 0, "errmsg": "ok"}`))
	}))
	defer server.Close()

	b := NewBot(testConfigWithURL(server.URL), zap.NewNop())

	err := b.Send(context.Background(), "## hello", []string{"13812345678", "user-id-1"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got.MsgType != "markdown" {
		t.Errorf("MsgType = %q, want markdown", got.MsgType)
	}
	if got.Markdown.Text != "## hello" {
		t.Errorf("Text = %q", got.Markdown.Text)
	}
	if len(got.At.AtMobiles) != 1 || got.At.AtMobiles[0] != "13812345678" {
		t.Errorf("AtMobiles = %v", got.At.AtMobiles)
	}
	if len(got.At.AtUserIDs) != 1 || got.At.AtUserIDs[0] != "user-id-1" {
		t.Errorf("AtUserIDs = %v", got.At.AtUserIDs)
	}
}

func TestSend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode": 310000, "errmsg": "keywords not in content"}`))
	}))
	defer server.Close()

	b := NewBot(testConfigWithURL(server.URL), zap.NewNop())
	err := b.Send(context.Background(), "msg", nil)
	if err == nil || !strings.Contains(err.Error(), "310000") {
		t.Errorf("expected errcode error, got %v", err)
	}
}

func TestSend_NoWebhookConfigured(t *testing.T) {
	b := NewBot(config.Default(), zap.NewNop())
	if err := b.Send(context.Background(), "msg", nil); err == nil {
		t.Error("expected error when webhook URL is missing")
	}
}

func TestSignedURL(t *testing.T) {
	cfg := testConfigWithURL("https://oapi.dingtalk.com/robot/send?access_token=abc")
	cfg.DingTalk.Secret = "SECshhh"
	b := NewBot(cfg, zap.NewNop())

	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	got := b.signedURL()

	timestamp := "1772323200000"
	mac := hmac.New(sha256.New, []byte("SECshhh"))
	mac.Write([]byte(timestamp + "\n" + "SECshhh"))
	wantSign := url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	want := cfg.DingTalk.WebhookURL + "&timestamp=" + timestamp + "&sign=" + wantSign
	if got != want {
		t.Errorf("signedURL = %q, want %q", got, want)
	}
}

func TestSendReview_SingleMessage(t *testing.T) {
	sends := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		w.Write([]byte(`{"errcode": 0}`))
	}))
	defer server.Close()

	cfg := testConfigWithURL(server.URL)
	cfg.DingTalk.Messages.EnableSplit = true
	cfg.DingTalk.Messages.MaxMessageLength = 100000
	b := NewBot(cfg, zap.NewNop())

	if err := b.SendReview(context.Background(), notifyCommit(), testOutcome()); err != nil {
		t.Fatalf("SendReview error: %v", err)
	}
	if sends != 1 {
		t.Errorf("got %d sends, want 1 for a short report", sends)
	}
}

func TestSendReview_SplitsLongMessage(t *testing.T) {
	var texts []string
	var atCounts []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg dingtalkMessage
		json.NewDecoder(r.Body).Decode(&msg)
		texts = append(texts, msg.Markdown.Text)
		atCounts = append(atCounts, len(msg.At.AtMobiles)+len(msg.At.AtUserIDs))
		w.Write([]byte(`{"errcode": 0}`))
	}))
	defer server.Close()

	cfg := testConfigWithURL(server.URL)
	cfg.DingTalk.Messages.EnableSplit = true
	cfg.DingTalk.Messages.MaxMessageLength = 50
	cfg.DefaultReviewers = []string{"reviewer-1"}
	b := NewBot(cfg, zap.NewNop())

	if err := b.SendReview(context.Background(), notifyCommit(), testOutcome()); err != nil {
		t.Fatalf("SendReview error: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("got %d sends, want 3 parts", len(texts))
	}
	if !strings.Contains(texts[0], "(1/3)") {
		t.Errorf("part 1 missing marker: %q", texts[0][:40])
	}
	if !strings.Contains(texts[1], "(2/3)") || !strings.Contains(texts[1], "check the error") {
		t.Errorf("part 2 should carry comments")
	}
	if !strings.Contains(texts[2], "(3/3)") || !strings.Contains(texts[2], "shutdown race") {
		t.Errorf("part 3 should carry suggestions and risks")
	}

	// Only the first part highlights users.
	if atCounts[0] == 0 || atCounts[1] != 0 || atCounts[2] != 0 {
		t.Errorf("at counts = %v, want highlights on part 1 only", atCounts)
	}
}

func TestSendReview_SplitSkipsEmptyParts(t *testing.T) {
	sends := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		w.Write([]byte(`{"errcode": 0}`))
	}))
	defer server.Close()

	cfg := testConfigWithURL(server.URL)
	cfg.DingTalk.Messages.EnableSplit = true
	cfg.DingTalk.Messages.MaxMessageLength = 50
	b := NewBot(cfg, zap.NewNop())

	outcome := &review.Outcome{Revision: "1", Score: 9, Summary: strings.Repeat("long summary ", 20)}
	if err := b.SendReview(context.Background(), notifyCommit(), outcome); err != nil {
		t.Fatalf("SendReview error: %v", err)
	}
	if sends != 1 {
		t.Errorf("got %d sends, want 1; no comments or suggestions to split out", sends)
	}
}

func TestSendError(t *testing.T) {
	var text string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg dingtalkMessage
		json.NewDecoder(r.Body).Decode(&msg)
		text = msg.Markdown.Text
		w.Write([]byte(`{"errcode": 0}`))
	}))
	defer server.Close()

	b := NewBot(testConfigWithURL(server.URL), zap.NewNop())
	if err := b.SendError(context.Background(), "polling failed"); err != nil {
		t.Fatalf("SendError error: %v", err)
	}
	if !strings.Contains(text, "polling failed") {
		t.Errorf("error message missing cause: %q", text)
	}
}

func TestRouteAtUsers(t *testing.T) {
	mobiles, userIDs := RouteAtUsers([]string{
		"13812345678", // 11 digits starting with 1
		"@991234",     // forced mobile
		"042",         // all digits
		"manager01",   // opaque ID
		"alice",
	})
	if len(mobiles) != 3 {
		t.Errorf("mobiles = %v, want 3 entries", mobiles)
	}
	if mobiles[1] != "991234" {
		t.Errorf("@-prefix should be stripped, got %q", mobiles[1])
	}
	if len(userIDs) != 2 || userIDs[0] != "manager01" {
		t.Errorf("userIDs = %v", userIDs)
	}
}

func TestAtUsers_AuthorAndPathReviewers(t *testing.T) {
	cfg := testConfigWithURL("http://example.invalid")
	cfg.PathReviewers = map[string][]string{"/trunk/src": {"bob"}}
	cfg.DefaultReviewers = []string{"fallback"}
	cfg.SetUserMapping(map[string]string{"alice": "13812345678", "bob": "bob-chat-id"})
	b := NewBot(cfg, zap.NewNop())

	users := b.atUsers(notifyCommit())
	if len(users) != 2 {
		t.Fatalf("users = %v, want author mapping plus path reviewer", users)
	}
	if users[0] != "13812345678" || users[1] != "bob-chat-id" {
		t.Errorf("users = %v", users)
	}
}

func TestAtUsers_DefaultReviewersFallback(t *testing.T) {
	cfg := testConfigWithURL("http://example.invalid")
	cfg.DefaultReviewers = []string{"fallback-1", "fallback-2"}
	b := NewBot(cfg, zap.NewNop())

	users := b.atUsers(notifyCommit())
	if len(users) != 2 || users[0] != "fallback-1" {
		t.Errorf("users = %v, want default reviewers", users)
	}
}
