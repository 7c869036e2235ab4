// Package client is a typed client for the student-auth service. It keeps the
// last-issued session (token plus student snapshot) in memory and optionally
// in a JSON file, so an app can restore a session at startup without a fresh
// login.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

var ErrNoSession = errors.New("no active session")

type Student struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Codigo    string  `json:"codigo"`
	Role      string  `json:"role"`
	EscolaID  *string `json:"escolaId,omitempty"`
	AnoLetivo *string `json:"anoLetivo,omitempty"`
	Turma     *string `json:"turma,omitempty"`
	Age       *int    `json:"age,omitempty"`
}

type Session struct {
	Token   string    `json:"token"`
	Student Student   `json:"student"`
	SavedAt time.Time `json:"savedAt"`
}

type RegisterRequest struct {
	Codigo    string  `json:"codigo"`
	Password  string  `json:"password"`
	Name      string  `json:"name"`
	AnoLetivo *string `json:"anoLetivo,omitempty"`
	Turma     *string `json:"turma,omitempty"`
	Age       *int    `json:"age,omitempty"`
}

type APIError struct {
	Status    int
	Code      string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("student-auth: %s (http %d)", e.Code, e.Status)
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithCacheFile persists the session to path on login/verify and removes it
// on logout.
func WithCacheFile(path string) Option {
	return func(c *Client) { c.cacheFile = path }
}

type Client struct {
	baseURL   string
	http      *http.Client
	cacheFile string

	mu      sync.RWMutex
	session *Session
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore loads a previously saved session from the cache file. It does not
// check the token against the server; call Verify for that.
func (c *Client) Restore() (*Session, error) {
	if c.cacheFile == "" {
		return nil, ErrNoSession
	}
	data, err := os.ReadFile(c.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.Token == "" {
		return nil, ErrNoSession
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
	return &session, nil
}

func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	copied := *c.session
	return &copied
}

type loginPayload struct {
	Codigo   string `json:"codigo"`
	Password string `json:"password"`
}

type loginResult struct {
	Success      bool    `json:"success"`
	Student      Student `json:"student"`
	SessionToken string  `json:"sessionToken"`
}

func (c *Client) Login(ctx context.Context, codigo, password string) (*Session, error) {
	var result loginResult
	if err := c.do(ctx, http.MethodPost, "login", "", loginPayload{Codigo: codigo, Password: password}, &result); err != nil {
		return nil, err
	}

	session := &Session{
		Token:   result.SessionToken,
		Student: result.Student,
		SavedAt: time.Now().UTC(),
	}
	c.storeSession(session)
	return session, nil
}

type registerResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Student Student `json:"student"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (Student, error) {
	var result registerResult
	if err := c.do(ctx, http.MethodPost, "register", "", req, &result); err != nil {
		return Student{}, err
	}
	return result.Student, nil
}

type verifyResult struct {
	Success bool    `json:"success"`
	Student Student `json:"student"`
}

// Verify checks the cached token against the server and refreshes the cached
// student snapshot from the response.
func (c *Client) Verify(ctx context.Context) (Student, error) {
	session := c.Session()
	if session == nil {
		return Student{}, ErrNoSession
	}

	var result verifyResult
	if err := c.do(ctx, http.MethodGet, "verify", session.Token, nil, &result); err != nil {
		return Student{}, err
	}

	session.Student = result.Student
	session.SavedAt = time.Now().UTC()
	c.storeSession(session)
	return result.Student, nil
}

func (c *Client) Logout(ctx context.Context) error {
	session := c.Session()
	if session == nil {
		return ErrNoSession
	}

	err := c.do(ctx, http.MethodPost, "logout", session.Token, nil, nil)
	c.discardSession()
	return err
}

func (c *Client) storeSession(session *Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if c.cacheFile == "" {
		return
	}
	if data, err := json.Marshal(session); err == nil {
		_ = os.WriteFile(c.cacheFile, data, 0o600)
	}
}

func (c *Client) discardSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if c.cacheFile != "" {
		_ = os.Remove(c.cacheFile)
	}
}

func (c *Client) do(ctx context.Context, method, action, token string, payload, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/student-auth?action="+action, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "server_error"}
		var errBody struct {
			Error     string `json:"error"`
			RequestID string `json:"requestId"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			apiErr.Code = errBody.Error
			apiErr.RequestID = errBody.RequestID
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
