// Package notify delivers review results to a DingTalk group webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/review"
	"github.com/dshills/vigil/internal/svn"
	"go.uber.org/zap"
)

// Bot posts markdown messages to one DingTalk robot webhook.
type Bot struct {
	cfg    config.Config
	client *http.Client
	log    *zap.Logger
	now    func() time.Time
}

// NewBot creates a notifier from the full config (it needs both the DingTalk
// settings and the reviewer routing tables).
func NewBot(cfg config.Config, log *zap.Logger) *Bot {
	return &Bot{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		now:    time.Now,
	}
}

// SendReview formats and delivers the review outcome for a commit. Messages
// over the configured length are split into up to three sequential sends.
func (b *Bot) SendReview(ctx context.Context, commit svn.Commit, outcome *review.Outcome) error {
	message := buildReviewMessage(commit, outcome, b.cfg.DingTalk.Messages)
	atUsers := b.atUsers(commit)

	settings := b.cfg.DingTalk.Messages
	if settings.EnableSplit && settings.MaxMessageLength > 0 && len(message) > settings.MaxMessageLength {
		return b.sendSplit(ctx, commit, outcome, atUsers)
	}
	return b.Send(ctx, message, atUsers)
}

// sendSplit delivers the report as three bounded parts: basics, comments,
// suggestions and risks. Only the first part highlights users.
func (b *Bot) sendSplit(ctx context.Context, commit svn.Commit, outcome *review.Outcome, atUsers []string) error {
	if err := b.Send(ctx, buildBasicsMessage(commit, outcome), atUsers); err != nil {
		return err
	}
	if len(outcome.Comments) > 0 {
		if err := b.Send(ctx, buildCommentsMessage(outcome, b.cfg.DingTalk.Messages), nil); err != nil {
			return err
		}
	}
	if msg := buildSuggestionsRisksMessage(outcome, b.cfg.DingTalk.Messages); strings.TrimSpace(msg) != "" {
		if err := b.Send(ctx, msg, nil); err != nil {
			return err
		}
	}
	return nil
}

// SendError posts a short service failure notice. Best effort: callers treat
// a failure here as log-only.
func (b *Bot) SendError(ctx context.Context, errorMessage string) error {
	return b.Send(ctx, "## ❌ Review service error\n\n"+errorMessage, nil)
}

// Send posts one markdown message, highlighting the given users. Identifiers
// that look like phone numbers go into atMobiles, the rest into atUserIds.
func (b *Bot) Send(ctx context.Context, message string, atUsers []string) error {
	if b.cfg.DingTalk.WebhookURL == "" {
		return fmt.Errorf("dingtalk webhook URL is not configured")
	}

	target := b.cfg.DingTalk.WebhookURL
	if b.cfg.DingTalk.Secret != "" {
		target = b.signedURL()
	}

	mobiles, userIDs := RouteAtUsers(atUsers)
	body := dingtalkMessage{
		MsgType: "markdown",
		Markdown: dingtalkMarkdown{
			Title: "Code review report",
			Text:  message,
		},
		At: dingtalkAt{
			AtMobiles: mobiles,
			AtUserIDs: userIDs,
			IsAtAll:   b.cfg.DingTalk.AtAll,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("dingtalk API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("dingtalk rejected message (errcode %d): %s", result.ErrCode, result.ErrMsg)
	}

	b.log.Debug("dingtalk message sent", zap.Int("bytes", len(message)))
	return nil
}

// signedURL appends the timestamp and HMAC-SHA256 signature DingTalk
// requires for secret-enabled robots.
func (b *Bot) signedURL() string {
	timestamp := fmt.Sprintf("%d", b.now().UnixMilli())
	stringToSign := timestamp + "\n" + b.cfg.DingTalk.Secret

	mac := hmac.New(sha256.New, []byte(b.cfg.DingTalk.Secret))
	mac.Write([]byte(stringToSign))
	sign := url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	return fmt.Sprintf("%s&timestamp=%s&sign=%s", b.cfg.DingTalk.WebhookURL, timestamp, sign)
}

// atUsers resolves who to highlight: the author's mapped chat ID, reviewers
// configured for the changed paths, then the default reviewers if nobody
// else matched.
func (b *Bot) atUsers(commit svn.Commit) []string {
	var users []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}

	add(b.cfg.UserID(commit.Author))
	for _, f := range commit.ChangedFiles {
		for _, reviewer := range b.cfg.ReviewersForPath(f.Path) {
			add(b.cfg.UserID(reviewer))
		}
	}
	if len(users) == 0 {
		for _, reviewer := range b.cfg.DefaultReviewers {
			add(reviewer)
		}
	}
	return users
}

// RouteAtUsers splits highlight identifiers into phone numbers and opaque
// user IDs. A leading '@' forces the mobile list; otherwise 11-digit numbers
// starting with 1 (and any all-digit value) count as mobiles.
func RouteAtUsers(users []string) (mobiles, userIDs []string) {
	for _, u := range users {
		switch {
		case strings.HasPrefix(u, "@"):
			mobiles = append(mobiles, u[1:])
		case isDigits(u) || (len(u) == 11 && strings.HasPrefix(u, "1")):
			mobiles = append(mobiles, u)
		default:
			userIDs = append(userIDs, u)
		}
	}
	return mobiles, userIDs
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type dingtalkMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown dingtalkMarkdown `json:"markdown"`
	At       dingtalkAt       `json:"at"`
}

type dingtalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type dingtalkAt struct {
	AtMobiles []string `json:"atMobiles"`
	AtUserIDs []string `json:"atUserIds"`
	IsAtAll   bool     `json:"isAtAll"`
}
