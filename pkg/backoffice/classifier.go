package backoffice

import (
	"encoding/json"
	"net/http"
	"strings"
)

// sessionFailurePhrases are the lowercase fragments the backoffice embeds in an
// otherwise successful response when the session is no longer accepted.
var sessionFailurePhrases = []string{
	"session expired",
	"session has expired",
	"session timed out",
	"invalid session",
	"session invalid",
	"session not found",
	"not logged in",
	"login required",
	"please log in",
	"unauthenticated",
	"unauthorized",
	"authentication required",
}

// IsAuthFailure reports whether a response means the session was rejected:
// either a transport-level 401, or a 200 envelope with result=false whose
// message names an invalid or expired session.
func IsAuthFailure(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status != http.StatusOK || len(body) == 0 {
		return false
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	if env.Result == nil || *env.Result {
		return false
	}

	msg := strings.ToLower(env.message())
	if msg == "" {
		return false
	}
	for _, phrase := range sessionFailurePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// envelope is the common backoffice response wrapper.
type envelope struct {
	Result  *bool           `json:"result"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// message returns the best human-readable failure text in the envelope.
func (e envelope) message() string {
	parts := make([]string, 0, 2)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if len(e.Error) > 0 && string(e.Error) != "null" {
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil {
			parts = append(parts, s)
		} else {
			var obj struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			if err := json.Unmarshal(e.Error, &obj); err == nil && (obj.Message != "" || obj.Code != "") {
				parts = append(parts, strings.TrimSpace(obj.Code+" "+obj.Message))
			} else {
				parts = append(parts, string(e.Error))
			}
		}
	}
	return strings.Join(parts, ": ")
}
