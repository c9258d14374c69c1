package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/blankon/submission-relay/internal/monitoring"
	"github.com/blankon/submission-relay/internal/storage"
	"github.com/blankon/submission-relay/internal/submission/model"
	httputil "github.com/blankon/submission-relay/pkg/httputil"
)

// AuditReader reads back audit records
type AuditReader interface {
	Get(ctx context.Context, id string) (*model.AuditRecord, error)
	Recent(ctx context.Context, limit int, email string) ([]*model.AuditRecord, error)
}

// InstanceLister reports the relay workers known to the registry
type InstanceLister interface {
	GetSummary(ctx context.Context) (monitoring.InstanceListResponse, error)
}

// SubmissionHTTPEndpoint http endpoint for relay status
type SubmissionHTTPEndpoint struct {
	version   string
	audit     AuditReader
	instances InstanceLister
}

// AuditListResponse response
type AuditListResponse struct {
	Records []*model.AuditRecord `json:"records"`
}

// NewSubmissionHTTPEndpoint returns new endpoint instance. audit and instances may be nil.
func NewSubmissionHTTPEndpoint(version string, audit AuditReader, instances InstanceLister) *SubmissionHTTPEndpoint {
	return &SubmissionHTTPEndpoint{
		version:   version,
		audit:     audit,
		instances: instances,
	}
}

// Routes registers the handlers on a new mux
func (e *SubmissionHTTPEndpoint) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.IndexHandler)
	mux.HandleFunc("/api/v1/audit", e.AuditListHandler)
	mux.HandleFunc("/api/v1/audit/", e.AuditRecordHandler)
	mux.HandleFunc("/api/v1/instances", e.InstancesHandler)
	return mux
}

// IndexHandler version banner
func (e *SubmissionHTTPEndpoint) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.ResponseError("Not found", http.StatusNotFound, w)
		return
	}
	fmt.Fprintf(w, "submission-relay %s", e.version)
}

// AuditListHandler lists recent audit records, ?limit=N&email=...
func (e *SubmissionHTTPEndpoint) AuditListHandler(w http.ResponseWriter, r *http.Request) {
	if e.audit == nil {
		httputil.ResponseError("Audit listing is not available for this driver", http.StatusNotImplemented, w)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.ResponseError("Invalid limit", http.StatusBadRequest, w)
			return
		}
		limit = n
	}

	records, err := e.audit.Recent(r.Context(), limit, r.URL.Query().Get("email"))
	if err != nil {
		httputil.ResponseError("Can't get audit records", http.StatusInternalServerError, w)
		return
	}
	if records == nil {
		records = []*model.AuditRecord{}
	}

	httputil.ResponseJSON(AuditListResponse{Records: records}, http.StatusOK, w)
}

// AuditRecordHandler returns one audit record, /api/v1/audit/{id}
func (e *SubmissionHTTPEndpoint) AuditRecordHandler(w http.ResponseWriter, r *http.Request) {
	if e.audit == nil {
		httputil.ResponseError("Audit listing is not available for this driver", http.StatusNotImplemented, w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/audit/")
	if id == "" || strings.Contains(id, "/") {
		httputil.ResponseError("Invalid audit record id", http.StatusBadRequest, w)
		return
	}

	record, err := e.audit.Get(r.Context(), id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		httputil.ResponseError("Audit record not found", http.StatusNotFound, w)
		return
	}
	if err != nil {
		httputil.ResponseError("Can't get audit record", http.StatusInternalServerError, w)
		return
	}

	httputil.ResponseJSON(record, http.StatusOK, w)
}

// InstancesHandler lists relay workers
func (e *SubmissionHTTPEndpoint) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	if e.instances == nil {
		httputil.ResponseError("Monitoring is disabled", http.StatusNotImplemented, w)
		return
	}

	summary, err := e.instances.GetSummary(r.Context())
	if err != nil {
		httputil.ResponseError("Can't get instances", http.StatusInternalServerError, w)
		return
	}

	httputil.ResponseJSON(summary, http.StatusOK, w)
}
