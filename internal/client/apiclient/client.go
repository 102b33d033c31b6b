// Package apiclient talks to the taskweb REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskweb/internal/client"
	"taskweb/internal/domain/model"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets where authenticated calls read their token from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(slog.String("component", "api_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource is used when the token source is built after the client,
// as with a session manager that logs in through this client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

type Me struct {
	User        model.User      `json:"user"`
	Permissions map[string]bool `json:"permissions"`
}

type ListTasksOptions struct {
	Status model.TaskStatus
	Search string
	Limit  int
	Offset int
}

type CreateTaskInput struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	AssignedToID *int64     `json:"assignedToId,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
}

type UpdateTaskInput struct {
	Title        *string           `json:"title,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Status       *model.TaskStatus `json:"status,omitempty"`
	AssignedToID *int64            `json:"assignedToId,omitempty"`
	DueDate      *time.Time        `json:"dueDate,omitempty"`
}

type CreateUserInput struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// Login exchanges credentials for a token. A 401 here means bad credentials,
// not an expired session.
func (c *Client) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		User  *model.User `json:"user"`
		Token string      `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp, false)
	if err != nil {
		if errors.Is(err, client.ErrSessionExpired) {
			return "", nil, client.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return "", nil, errors.New("login response is missing the token or the user")
	}
	return resp.Token, resp.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, true)
}

func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &me, true); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) ([]model.Task, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks, true); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &task, true); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", in, &task, true); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, in UpdateTaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id, ""), in, &task, true); err != nil {
		return nil, transitionError(err)
	}
	return &task, nil
}

// UpdateStatus moves a task to status.
func (c *Client) UpdateStatus(ctx context.Context, taskID int64, status model.TaskStatus) (*model.Task, error) {
	var task model.Task
	body := map[string]model.TaskStatus{"status": status}
	if err := c.do(ctx, http.MethodPatch, taskPath(taskID, "/status"), body, &task, true); err != nil {
		return nil, transitionError(err)
	}
	return &task, nil
}

// AssignTask sets the assignee; nil unassigns.
func (c *Client) AssignTask(ctx context.Context, taskID int64, assigneeID *int64) (*model.Task, error) {
	var task model.Task
	body := map[string]*int64{"assignedToId": assigneeID}
	if err := c.do(ctx, http.MethodPatch, taskPath(taskID, "/assignee"), body, &task, true); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id, ""), nil, nil, true)
}

func (c *Client) Stats(ctx context.Context) (*model.TaskStats, error) {
	var stats model.TaskStats
	if err := c.do(ctx, http.MethodGet, "/api/tasks/stats", nil, &stats, true); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) History(ctx context.Context, taskID int64) ([]model.TaskHistoryEntry, error) {
	var entries []model.TaskHistoryEntry
	if err := c.do(ctx, http.MethodGet, taskPath(taskID, "/history"), nil, &entries, true); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, http.MethodGet, "/api/tasks/users", nil, &users, true); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	var users []model.User
	path := "/api/tasks/users/search?" + url.Values{"query": {query}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &users, true); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/api/users", in, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, authenticated bool) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token := ""
		if c.tokens != nil {
			token = c.tokens.Token()
		}
		if token == "" {
			return client.ErrNotAuthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call", slog.String("method", method), slog.String("path", path), slog.Int("status", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}

	apiErr := &client.APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", client.ErrSessionExpired, apiErr)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", client.ErrForbidden, apiErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", client.ErrNotFound, apiErr)
	default:
		return apiErr
	}
}

// transitionError maps the server's 409 on a status change to
// client.ErrInvalidTransition.
func transitionError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", client.ErrInvalidTransition, apiErr.Message)
	}
	return err
}

func taskPath(id int64, suffix string) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10) + suffix
}
