package backoffice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeBackoffice is an in-process stand-in for the backoffice API.
type fakeBackoffice struct {
	mu sync.Mutex

	users  map[string]string
	tokens map[string]bool
	seq    int

	logins int
	calls  map[string]int

	// rejectNext makes the next N endpoint calls fail with an embedded expired-session message.
	rejectNext int
	// always401 makes every endpoint call fail with HTTP 401.
	always401 bool
	// status forces a status code for endpoint calls.
	status int
	// failMessage makes endpoint calls return result=false with this message.
	failMessage string
	// data is returned as the envelope data per endpoint.
	data map[string]interface{}

	lastPayload map[string]interface{}
}

func newFakeBackoffice() *fakeBackoffice {
	return &fakeBackoffice{
		users:  map[string]string{"north": "secret"},
		tokens: make(map[string]bool),
		calls:  make(map[string]int),
		data:   make(map[string]interface{}),
	}
}

func (f *fakeBackoffice) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeBackoffice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var payload map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	if r.URL.Path == "/login" {
		f.logins++
		user, _ := payload["username"].(string)
		pass, _ := payload["password"].(string)
		if want, ok := f.users[user]; !ok || want != pass {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"result":false,"message":"bad credentials"}`))
			return
		}
		f.seq++
		token := fmt.Sprintf("tok-%d", f.seq)
		f.tokens[token] = true
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result": true,
			"data":   map[string]interface{}{"sessionId": token, "userId": 77},
		})
		return
	}

	f.calls[r.URL.Path]++
	f.lastPayload = payload

	if f.always401 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || !f.tokens[cookie.Value] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if f.rejectNext > 0 {
		f.rejectNext--
		delete(f.tokens, cookie.Value)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result":  false,
			"message": "Session expired, please log in again",
		})
		return
	}

	if f.failMessage != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": false, "message": f.failMessage})
		return
	}

	if f.status != 0 && f.status != http.StatusOK {
		writeJSON(w, f.status, map[string]interface{}{"result": false, "message": "upstream failure"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": true,
		"data":   f.data[r.URL.Path],
	})
}

// update mutates the fake under its lock.
func (f *fakeBackoffice) update(fn func(f *fakeBackoffice)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackoffice) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeBackoffice) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testConfig returns a config pointed at url with retry sleeps recorded instead of waited.
func testConfig(url string, sleeps *[]time.Duration) Config {
	return Config{
		BaseURL:        url,
		RequestTimeout: 5 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	}
}

func newTestClient(cfg Config, creds Credentials, opts ...SessionOption) *Client {
	session := NewSession("north", creds, NewLoginer(cfg), opts...)
	return NewClient(cfg, session)
}
