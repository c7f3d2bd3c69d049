package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// revisionKeys are the payload fields a post-commit hook may use to name the
// revision, in lookup order.
var revisionKeys = []string{"revision", "rev", "r"}

// webhookHandler accepts post-commit push triggers on /svn-hook. It always
// acknowledges well-formed HTTP requests immediately; processing happens on
// the dispatcher pool and the poller covers anything the hook drops.
type webhookHandler struct {
	dispatcher *Dispatcher
	log        *zap.Logger
}

func newWebhookMux(d *Dispatcher, log *zap.Logger) *http.ServeMux {
	h := &webhookHandler{dispatcher: d, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/svn-hook", h.handleHook)
	mux.HandleFunc("/healthz", h.handleHealth)
	return mux
}

func (h *webhookHandler) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	revision := extractRevision(r.Header.Get("Content-Type"), body)
	if revision == "" {
		// Malformed or empty payloads are acknowledged and ignored; the
		// poller remains the source of truth.
		h.log.Warn("webhook payload without revision", zap.Int("bytes", len(body)))
	} else if h.dispatcher.TrySubmit(revision) {
		h.log.Info("webhook trigger accepted", zap.String("revision", revision))
	} else {
		h.log.Warn("webhook trigger dropped, queue full", zap.String("revision", revision))
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status": "ok"}`)
}

func (h *webhookHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status": "ok"}`)
}

// extractRevision pulls the revision out of a JSON or form-encoded payload.
// Numeric JSON values are accepted alongside strings.
func extractRevision(contentType string, body []byte) string {
	if strings.Contains(contentType, "application/json") || looksLikeJSON(body) {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return ""
		}
		for _, key := range revisionKeys {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return fmt.Sprintf("%d", int64(v))
			}
		}
		return ""
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	for _, key := range revisionKeys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{")
}
