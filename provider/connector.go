package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

const accessTokenParam = "access_token"

// Remote job states reported by the API.
const (
	StateValidating         = "VALIDATING"
	StateQueued             = "QUEUED"
	StateRunning            = "RUNNING"
	StateCompleted          = "COMPLETED"
	StateCancelled          = "CANCELLED"
	StateErrorCreatingJob   = "ERROR_CREATING_JOB"
	StateErrorValidatingJob = "ERROR_VALIDATING_JOB"
	StateErrorRunningJob    = "ERROR_RUNNING_JOB"
)

// Scope is the hub/group/project a URL is bound to. The zero value means
// the public endpoints.
type Scope struct {
	Hub     string
	Group   string
	Project string
}

func (s Scope) complete() bool {
	return s.Hub != "" && s.Group != "" && s.Project != ""
}

// ParseURL splits an API URL into its base and scope. A URL like
// https://host/api/Hubs/h/Groups/g/Projects/p is scoped to h/g/p and its
// base becomes https://host/api. Anything else is used as is.
func ParseURL(raw string) (string, Scope) {
	parts := strings.Split(raw, "/api")
	if len(parts) != 2 {
		return raw, Scope{}
	}
	var s Scope
	if pp := strings.Split(parts[1], "/Projects/"); len(pp) == 2 {
		s.Project = pp[1]
		if gp := strings.Split(pp[0], "/Groups/"); len(gp) == 2 {
			s.Group = gp[1]
			if hp := strings.Split(gp[0], "/Hubs/"); len(hp) == 2 {
				s.Hub = hp[1]
			}
		}
	}
	if !s.complete() {
		return raw, Scope{}
	}
	return parts[0] + "/api", s
}

// Connector speaks the remote HTTP API. Requests carry the access token
// obtained by Login as a query parameter.
type Connector struct {
	baseURL string
	scope   Scope
	token   string
	client  *http.Client

	mu          sync.RWMutex
	accessToken string
	userID      string
}

func NewConnector(token, rawURL string, client *http.Client) *Connector {
	base, scope := ParseURL(strings.TrimRight(rawURL, "/"))
	if client == nil {
		client = http.DefaultClient
	}
	return &Connector{
		baseURL: base,
		scope:   scope,
		token:   token,
		client:  newLoggingClient(client),
	}
}

func (c *Connector) Scope() Scope {
	return c.scope
}

func (c *Connector) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	APIToken string `json:"apiToken"`
}

type loginResponse struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// Login exchanges the API token for an access token.
func (c *Connector) Login(ctx context.Context) error {
	if c.token == "" {
		return fmt.Errorf("%w: empty token", ErrCredentials)
	}
	var res loginResponse
	if err := c.call(ctx, http.MethodPost, "/users/loginWithToken", nil, loginRequest{APIToken: c.token}, &res); err != nil {
		zap.L().Error(fmt.Sprintf("failed to log in to %s/reason:%s", c.baseURL, err))
		return err
	}
	if res.ID == "" {
		return fmt.Errorf("%w: no access token in login response", ErrCredentials)
	}
	c.mu.Lock()
	c.accessToken = res.ID
	c.userID = res.UserID
	c.mu.Unlock()
	return nil
}

func (c *Connector) CheckCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

func (c *Connector) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connector) call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := jsonIter.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProvider, err)
		}
		reader = bytes.NewReader(b)
	}
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	c.mu.RLock()
	if c.accessToken != "" {
		q.Set(accessTokenParam, c.accessToken)
	}
	c.mu.RUnlock()
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvider, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Message: errorMessage(b)}
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := jsonIter.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s: %w", ErrProvider, method, path, err)
	}
	return nil
}

func errorMessage(b []byte) string {
	var e struct {
		Error interface{} `json:"error"`
	}
	if jsonIter.Unmarshal(b, &e) == nil && e.Error != nil {
		if m, ok := e.Error.(map[string]interface{}); ok {
			if msg, ok := m["message"].(string); ok {
				return msg
			}
		}
		return fmt.Sprint(e.Error)
	}
	return strings.TrimSpace(string(b))
}

func (c *Connector) requireCredentials() error {
	if !c.CheckCredentials() {
		return ErrCredentials
	}
	return nil
}

func (c *Connector) jobsPath() string {
	if c.scope.complete() {
		return fmt.Sprintf("/Network/%s/Groups/%s/Projects/%s/jobs", c.scope.Hub, c.scope.Group, c.scope.Project)
	}
	return "/Jobs"
}

func (c *Connector) backendsPath() string {
	if c.scope.complete() {
		return fmt.Sprintf("/Network/%s/Groups/%s/Projects/%s/devices/v/1", c.scope.Hub, c.scope.Group, c.scope.Project)
	}
	return "/Backends/v/1"
}

func (c *Connector) propertiesPath(name string) string {
	if c.scope.Hub != "" {
		return fmt.Sprintf("/Network/%s/devices/%s/properties", c.scope.Hub, name)
	}
	return fmt.Sprintf("/Backends/%s/properties", name)
}

// AvailableBackends lists the backend configurations. An object answer
// instead of a list means there is nothing available.
func (c *Connector) AvailableBackends(ctx context.Context) ([]*backend.Configuration, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	var raw jsoniter.RawMessage
	if err := c.call(ctx, http.MethodGet, c.backendsPath(), nil, nil, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []*backend.Configuration{}, nil
	}
	var out []*backend.Configuration
	if err := jsonIter.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return out, nil
}

// checkBackend returns the canonical backend name or ErrBadBackend.
func (c *Connector) checkBackend(ctx context.Context, name string) (string, error) {
	name = strings.ToLower(name)
	configs, err := c.AvailableBackends(ctx)
	if err != nil {
		return "", err
	}
	for _, cfg := range configs {
		if cfg.BackendName == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBadBackend, name)
}

type queueStatus struct {
	LengthQueue    *int   `json:"lengthQueue"`
	State          bool   `json:"state"`
	Status         string `json:"status"`
	BackendVersion string `json:"backend_version"`
	Busy           *bool  `json:"busy"`
}

func (c *Connector) BackendStatus(ctx context.Context, name string) (*backend.Status, error) {
	name, err := c.checkBackend(ctx, name)
	if err != nil {
		return nil, err
	}
	var qs queueStatus
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/Backends/%s/queue/status", name), nil, nil, &qs); err != nil {
		return nil, err
	}
	st := &backend.Status{
		BackendName:    name,
		BackendVersion: qs.BackendVersion,
		Operational:    qs.State,
		StatusMsg:      qs.Status,
	}
	if st.BackendVersion == "" {
		st.BackendVersion = "0.0.0"
	}
	if qs.LengthQueue != nil {
		st.PendingJobs = max(*qs.LengthQueue, 0)
	}
	return st, nil
}

func (c *Connector) BackendProperties(ctx context.Context, name string) (*backend.Properties, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	name, err := c.checkBackend(ctx, name)
	if err != nil {
		return nil, err
	}
	var raw jsoniter.RawMessage
	if err := c.call(ctx, http.MethodGet, c.propertiesPath(name), url.Values{"version": {"1"}}, nil, &raw); err != nil {
		return nil, err
	}
	p := &backend.Properties{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "{}" || string(trimmed) == "null" {
		return p, nil
	}
	if err := jsonIter.Unmarshal(trimmed, p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	p.BackendName = name
	return p, nil
}

type runJobRequest struct {
	QObject *transpiler.Qobj `json:"qObject"`
	Backend struct {
		Name string `json:"name"`
	} `json:"backend"`
}

// JobInfo is the job document of the API.
type JobInfo struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	CreationDate  string              `json:"creationDate,omitempty"`
	Backend       map[string]string   `json:"backend,omitempty"`
	QObjectResult jsoniter.RawMessage `json:"qObjectResult,omitempty"`
	Properties    jsoniter.RawMessage `json:"properties,omitempty"`
	Calibration   jsoniter.RawMessage `json:"calibration,omitempty"`
	Error         interface{}         `json:"error,omitempty"`
}

func (c *Connector) RunJob(ctx context.Context, q *transpiler.Qobj, backendName string) (*JobInfo, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	name, err := c.checkBackend(ctx, backendName)
	if err != nil {
		return nil, err
	}
	req := runJobRequest{QObject: q}
	req.Backend.Name = name
	var info JobInfo
	if err := c.call(ctx, http.MethodPost, c.jobsPath(), nil, req, &info); err != nil {
		return nil, err
	}
	if info.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrJobFailed, info.Error)
	}
	return &info, nil
}

func (c *Connector) GetJob(ctx context.Context, id string) (*JobInfo, error) {
	return c.GetJobFields(ctx, id, nil, nil)
}

// GetJobFields is GetJob with a field selection. Excluded fields are left
// out of the answer, and when include is not empty only those are returned.
func (c *Connector) GetJobFields(ctx context.Context, id string, exclude, include []string) (*JobInfo, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: job id not specified", ErrProvider)
	}
	query, err := fieldsFilter(exclude, include)
	if err != nil {
		return nil, err
	}
	var info JobInfo
	if err := c.call(ctx, http.MethodGet, c.jobsPath()+"/"+id, query, nil, &info); err != nil {
		return nil, err
	}
	if len(info.Properties) == 0 {
		info.Properties = info.Calibration
	}
	info.Calibration = nil
	return &info, nil
}

// fieldsFilter builds {"fields":{name:bool}}. The API calls the properties of
// a job "calibration".
func fieldsFilter(exclude, include []string) (url.Values, error) {
	if len(exclude) == 0 && len(include) == 0 {
		return nil, nil
	}
	fields := make(map[string]bool, len(exclude)+len(include))
	rename := func(f string) string {
		if f == "properties" {
			return "calibration"
		}
		return f
	}
	for _, f := range exclude {
		fields[rename(f)] = false
	}
	for _, f := range include {
		fields[rename(f)] = true
	}
	b, err := jsonIter.Marshal(map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}
	return url.Values{"filter": {string(b)}}, nil
}

// JobsQuery selects jobs for GetJobs and GetStatusJobs, newest first. Where
// replaces the Backend and OnlyCompleted conditions when set.
type JobsQuery struct {
	Limit         int
	Skip          int
	Backend       string
	OnlyCompleted bool
	Where         map[string]interface{}
}

const defaultJobsLimit = 10

type jobsFilter struct {
	Order string                 `json:"order"`
	Limit int                    `json:"limit"`
	Skip  int                    `json:"skip"`
	Where map[string]interface{} `json:"where"`
}

func (q JobsQuery) values(statusOnly bool) (url.Values, error) {
	f := jobsFilter{Order: "creationDate DESC", Limit: q.Limit, Skip: max(q.Skip, 0), Where: q.Where}
	if f.Limit <= 0 {
		f.Limit = defaultJobsLimit
	}
	if f.Where == nil {
		f.Where = map[string]interface{}{}
		if q.Backend != "" {
			f.Where["backend.name"] = q.Backend
		}
		if q.OnlyCompleted && !statusOnly {
			f.Where["status"] = StateCompleted
		}
	}
	b, err := jsonIter.Marshal(f)
	if err != nil {
		return nil, err
	}
	return url.Values{"filter": {string(b)}}, nil
}

// GetJobs lists job documents.
func (c *Connector) GetJobs(ctx context.Context, q JobsQuery) ([]*JobInfo, error) {
	return c.listJobs(ctx, c.jobsPath(), q, false)
}

// GetStatusJobs lists job statuses. OnlyCompleted is ignored.
func (c *Connector) GetStatusJobs(ctx context.Context, q JobsQuery) ([]*JobInfo, error) {
	return c.listJobs(ctx, c.jobsPath()+"/status", q, true)
}

func (c *Connector) listJobs(ctx context.Context, path string, q JobsQuery, statusOnly bool) ([]*JobInfo, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	query, err := q.values(statusOnly)
	if err != nil {
		return nil, err
	}
	out := []*JobInfo{}
	if err := c.call(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Connector) GetStatusJob(ctx context.Context, id string) (*JobInfo, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: job id not specified", ErrProvider)
	}
	var info JobInfo
	if err := c.call(ctx, http.MethodGet, c.jobsPath()+"/"+id+"/status", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Connector) CancelJob(ctx context.Context, id string) error {
	if err := c.requireCredentials(); err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, c.jobsPath()+"/"+id+"/cancel", nil, nil, nil)
}

// APIVersion returns the version document of the API.
func (c *Connector) APIVersion(ctx context.Context) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.call(ctx, http.MethodGet, "/version", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toJobStatus(state string) backend.JobStatus {
	switch state {
	case StateCompleted:
		return backend.JobStatusDone
	case StateCancelled:
		return backend.JobStatusCancelled
	case StateRunning:
		return backend.JobStatusRunning
	case StateQueued:
		return backend.JobStatusQueued
	case StateValidating, "":
		return backend.JobStatusInitializing
	}
	if strings.HasPrefix(state, "ERROR") {
		return backend.JobStatusError
	}
	zap.L().Warn(fmt.Sprintf("unknown remote job state %s", state))
	return backend.JobStatusInitializing
}
