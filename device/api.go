package device

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	apiPrefix    = "/api"
	scopedPrefix = "/api/Network/{hub}/Groups/{group}/Projects/{project}"

	accessTokenParam = "access_token"
	tokenTTL         = 1209600
)

// Remote job states. They match what the provider client expects.
const (
	stateQueued          = "QUEUED"
	stateRunning         = "RUNNING"
	stateCompleted       = "COMPLETED"
	stateCancelled       = "CANCELLED"
	stateErrorCreating   = "ERROR_CREATING_JOB"
	stateErrorValidating = "ERROR_VALIDATING_JOB"
	stateErrorRunning    = "ERROR_RUNNING_JOB"
)

type apiError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type jobInfo struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	CreationDate  string              `json:"creationDate,omitempty"`
	EndDate       string              `json:"endDate,omitempty"`
	Backend       map[string]string   `json:"backend,omitempty"`
	QObjectResult jsoniter.RawMessage `json:"qObjectResult,omitempty"`
	Calibration   jsoniter.RawMessage `json:"calibration,omitempty"`
	Error         *apiError           `json:"error,omitempty"`
}

// listFilter is the filter query of the job endpoints.
type listFilter struct {
	Order  string                 `json:"order"`
	Limit  *int                   `json:"limit"`
	Skip   int                    `json:"skip"`
	Where  map[string]interface{} `json:"where"`
	Fields map[string]bool        `json:"fields"`
}

const defaultListLimit = 10

func parseFilter(r *http.Request) (*listFilter, error) {
	f := &listFilter{}
	raw := r.URL.Query().Get("filter")
	if raw == "" {
		return f, nil
	}
	if err := jsonIter.Unmarshal([]byte(raw), f); err != nil {
		return nil, errors.Wrap(err, "invalid filter")
	}
	switch f.Order {
	case "", "creationDate DESC", "creationDate ASC":
	default:
		return nil, fmt.Errorf("unsupported order %q", f.Order)
	}
	for k := range f.Where {
		if k != "backend.name" && k != "status" {
			return nil, fmt.Errorf("unsupported where condition %q", k)
		}
	}
	if f.Skip < 0 {
		return nil, fmt.Errorf("negative skip %d", f.Skip)
	}
	return f, nil
}

func (f *listFilter) match(info *jobInfo) bool {
	for k, v := range f.Where {
		want := fmt.Sprint(v)
		switch k {
		case "backend.name":
			if info.Backend["name"] != want {
				return false
			}
		case "status":
			if info.Status != want {
				return false
			}
		}
	}
	return true
}

type runJobRequest struct {
	QObject jsoniter.RawMessage `json:"qObject"`
	Backend struct {
		Name string `json:"name"`
	} `json:"backend"`
	// Mitigation is an optional object such as {"readout":"tensored"}.
	Mitigation jsoniter.RawMessage `json:"mitigation,omitempty"`
}

// Handler serves the remote device API under /api.
func (d *Device) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiPrefix+"/users/loginWithToken", d.handleLogin)
	mux.HandleFunc("GET "+apiPrefix+"/version", d.handleVersion)

	mux.HandleFunc("GET "+apiPrefix+"/Backends/v/1", d.auth(d.handleBackends))
	mux.HandleFunc("GET "+scopedPrefix+"/devices/v/1", d.auth(d.handleBackends))
	mux.HandleFunc("GET "+apiPrefix+"/Backends/{name}/queue/status", d.auth(d.handleQueueStatus))
	mux.HandleFunc("GET "+apiPrefix+"/Backends/{name}/properties", d.auth(d.handleProperties))
	mux.HandleFunc("GET "+apiPrefix+"/Network/{hub}/devices/{name}/properties", d.auth(d.handleProperties))

	for _, jobs := range []string{apiPrefix + "/Jobs", scopedPrefix + "/jobs"} {
		mux.HandleFunc("POST "+jobs, d.auth(d.handleRunJob))
		mux.HandleFunc("GET "+jobs, d.auth(d.handleListJobs(true)))
		mux.HandleFunc("GET "+jobs+"/status", d.auth(d.handleListJobs(false)))
		mux.HandleFunc("GET "+jobs+"/{id}", d.auth(d.handleGetJob(true)))
		mux.HandleFunc("GET "+jobs+"/{id}/status", d.auth(d.handleGetJob(false)))
		mux.HandleFunc("POST "+jobs+"/{id}/cancel", d.auth(d.handleCancelJob))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := jsonIter.Marshal(v)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to marshal response/reason:%s", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]*apiError{"error": {Message: err.Error(), Status: status}})
}

func (d *Device) auth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !d.authorized(r.URL.Query().Get(accessTokenParam)) {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid access token"))
			return
		}
		h(w, r)
	}
}

func (d *Device) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIToken string `json:"apiToken"`
	}
	if err := jsonIter.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	accessToken, err := d.login(req.APIToken)
	if err != nil {
		zap.L().Info(fmt.Sprintf("rejected login from %s", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	d.mu.RLock()
	userID := d.tokens[accessToken]
	d.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": accessToken, "userId": userID, "ttl": tokenTTL})
}

func (d *Device) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"new_version": true,
		"api":         core.Version,
		"backend":     d.version(),
	})
}

func (d *Device) handleBackends(w http.ResponseWriter, _ *http.Request) {
	config, err := d.Configuration()
	if err != nil {
		// an object instead of a list means nothing is available
		writeJSON(w, http.StatusOK, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, []*backend.Configuration{config})
}

func (d *Device) checkName(w http.ResponseWriter, r *http.Request) bool {
	if name := r.PathValue("name"); name != d.BackendName() {
		writeError(w, http.StatusNotFound, errors.Wrap(ErrUnknownBackend, name))
		return false
	}
	return true
}

func (d *Device) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if !d.checkName(w, r) {
		return
	}
	status := d.qpu.GetDeviceInfo().Status
	n := d.QueueLength()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lengthQueue":     n,
		"state":           status == core.Available,
		"status":          status.String(),
		"backend_version": d.version(),
		"busy":            n > 0,
	})
}

func (d *Device) handleProperties(w http.ResponseWriter, r *http.Request) {
	if !d.checkName(w, r) {
		return
	}
	p, err := d.Properties()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (d *Device) handleRunJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req runJobRequest
	if err := jsonIter.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := transpiler.ParseQobj(req.QObject)
	if err != nil {
		writeJSON(w, http.StatusOK, &jobInfo{
			Status: stateErrorValidating,
			Error:  &apiError{Message: err.Error(), Status: http.StatusBadRequest},
		})
		return
	}
	jd, err := d.submit(r.Context(), submission{
		program:     string(req.QObject),
		shots:       q.Config.Shots,
		backendName: req.Backend.Name,
		mitigation:  mitigationString(req.Mitigation),
	})
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to create a job/reason:%s", err))
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownBackend) {
			status = http.StatusNotFound
		}
		writeJSON(w, http.StatusOK, &jobInfo{
			Status: stateErrorCreating,
			Error:  &apiError{Message: err.Error(), Status: status},
		})
		return
	}
	writeJSON(w, http.StatusOK, d.jobInfo(jd, false))
}

func mitigationString(raw jsoniter.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func (d *Device) handleGetJob(withResult bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		jd, err := d.Job(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		doc, err := d.selectFields(d.jobInfo(jd, withResult), f.Fields)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func (d *Device) handleListJobs(withResult bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		jds := d.Jobs()
		if f.Order == "creationDate ASC" {
			for i, j := 0, len(jds)-1; i < j; i, j = i+1, j-1 {
				jds[i], jds[j] = jds[j], jds[i]
			}
		}
		limit := defaultListLimit
		if f.Limit != nil {
			limit = *f.Limit
		}
		out := []*jobInfo{}
		skipped := 0
		for _, jd := range jds {
			if len(out) >= limit {
				break
			}
			info := d.jobInfo(jd, false)
			if !f.match(info) {
				continue
			}
			if skipped < f.Skip {
				skipped++
				continue
			}
			if withResult {
				info = d.jobInfo(jd, true)
			}
			out = append(out, info)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// selectFields applies a {"fields":{name:bool}} selection to a job document.
// With any true field only the true ones are kept.
func (d *Device) selectFields(info *jobInfo, fields map[string]bool) (interface{}, error) {
	if len(fields) == 0 {
		return info, nil
	}
	if fields["calibration"] {
		p, err := d.Properties()
		if err != nil {
			return nil, err
		}
		b, err := jsonIter.Marshal(p)
		if err != nil {
			return nil, err
		}
		info.Calibration = b
	}
	b, err := jsonIter.Marshal(info)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := jsonIter.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	onlyIncluded := false
	for _, keep := range fields {
		onlyIncluded = onlyIncluded || keep
	}
	for k := range doc {
		keep, listed := fields[k]
		if (listed && !keep) || (onlyIncluded && !listed) {
			delete(doc, k)
		}
	}
	return doc, nil
}

func (d *Device) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := d.Cancel(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "cancelled": true})
	case errors.Is(err, core.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusConflict, err)
	}
}

func toState(jd *core.JobData) string {
	switch jd.Status {
	case core.SUBMITTED, core.READY:
		return stateQueued
	case core.RUNNING:
		return stateRunning
	case core.SUCCEEDED:
		return stateCompleted
	case core.CANCELLED:
		return stateCancelled
	default:
		return stateErrorRunning
	}
}

func (d *Device) jobInfo(jd *core.JobData, withResult bool) *jobInfo {
	info := &jobInfo{
		ID:           jd.ID,
		Status:       toState(jd),
		CreationDate: jd.Created.String(),
		Backend:      map[string]string{"name": jd.BackendName},
	}
	if jd.Status.IsFinal() {
		info.EndDate = jd.Ended.String()
	}
	if jd.Status == core.FAILED {
		info.Error = &apiError{Message: jd.Result.Message, Status: http.StatusInternalServerError}
	}
	if !withResult || jd.Status != core.SUCCEEDED {
		return info
	}
	b, err := d.qobjResult(jd)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to build the result of job(%s)/reason:%s", jd.ID, err))
		info.Status = stateErrorRunning
		info.Error = &apiError{Message: err.Error(), Status: http.StatusInternalServerError}
		return info
	}
	info.QObjectResult = b
	return info
}

func (d *Device) qobjResult(jd *core.JobData) ([]byte, error) {
	q, err := transpiler.ParseQobj([]byte(jd.ExecutableProgram()))
	if err != nil {
		return nil, err
	}
	config, err := d.Configuration()
	if err != nil {
		return nil, err
	}
	if jd.Shots > 0 {
		q.Config.Shots = jd.Shots
	}
	raw := rawCounts(jd)
	counts := make([]result.Counts, len(raw))
	for i, c := range raw {
		counts[i] = c
	}
	return backend.BuildResult(config, jd.ID, q, counts).Marshal()
}
