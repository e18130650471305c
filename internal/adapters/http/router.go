package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
	"github.com/akozyrev/ragshield/internal/observability/metrics"
)

type Router struct {
	retrieval     ports.RetrievalService
	feedback      ports.FeedbackService
	conversations ports.ConversationReader
	documents     ports.DocumentAdmin
	analytics     ports.AnalyticsService
	queryLogs     ports.ProvenanceStore
	relationships ports.RelationshipAdmin

	jwtSecret   string
	limiter     *subjectLimiter
	serviceName string
	apiMetrics  *metrics.APIMetrics
}

type RouterOptions struct {
	JWTSecret           string
	RateLimitPerSubject float64
	RateBurstPerSubject int
	ServiceName         string
	Metrics             *metrics.APIMetrics
}

func NewRouter(
	retrieval ports.RetrievalService,
	feedback ports.FeedbackService,
	conversations ports.ConversationReader,
	documents ports.DocumentAdmin,
	analytics ports.AnalyticsService,
	queryLogs ports.ProvenanceStore,
	relationships ports.RelationshipAdmin,
	options RouterOptions,
) *Router {
	serviceName := options.ServiceName
	if serviceName == "" {
		serviceName = "api"
	}
	return &Router{
		retrieval:     retrieval,
		feedback:      feedback,
		conversations: conversations,
		documents:     documents,
		analytics:     analytics,
		queryLogs:     queryLogs,
		relationships: relationships,
		jwtSecret:     options.JWTSecret,
		limiter:       newSubjectLimiter(options.RateLimitPerSubject, options.RateBurstPerSubject),
		serviceName:   serviceName,
		apiMetrics:    options.Metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/feedback", rt.submitFeedback)
	mux.HandleFunc("/v1/documents", rt.upsertDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocument)
	mux.HandleFunc("/v1/conversations/", rt.getConversation)
	mux.HandleFunc("/v1/query-logs", rt.listQueryLogs)
	mux.HandleFunc("/v1/analytics", rt.getAnalytics)
	mux.HandleFunc("/v1/relationships", rt.relationshipAdmin)
	if rt.apiMetrics != nil {
		mux.Handle("/metrics", rt.apiMetrics.Handler())
	}

	var handler http.Handler = mux
	handler = rt.limiter.middleware(handler)
	handler = authMiddleware(rt.jwtSecret, handler)
	if rt.apiMetrics != nil {
		handler = rt.apiMetrics.Middleware(rt.serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query     string `json:"query"`
		K         int    `json:"k"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.retrieval.Retrieve(r.Context(), ports.RetrieveRequest{
		Subject:   subjectFromContext(r.Context()),
		Query:     req.Query,
		K:         req.K,
		SessionID: req.SessionID,
	})
	if err != nil {
		rt.recordQuery("error", start)
		writeError(w, err)
		return
	}

	rt.recordQuery("ok", start)
	if rt.apiMetrics != nil && result.Answer != nil {
		rt.apiMetrics.RecordAnswerConfidence(result.Answer.Confidence)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordQuery(status string, start time.Time) {
	if rt.apiMetrics != nil {
		rt.apiMetrics.RecordQuery(rt.serviceName, status, time.Since(start))
	}
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		ProvenanceID   string   `json:"provenance_id"`
		Rating         int      `json:"rating"`
		Helpful        bool     `json:"helpful"`
		Comment        string   `json:"comment"`
		RelevantDocIDs []string `json:"relevant_doc_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	entry, err := rt.feedback.Submit(r.Context(), ports.FeedbackRequest{
		ProvenanceID:   req.ProvenanceID,
		Rating:         req.Rating,
		Helpful:        req.Helpful,
		Comment:        req.Comment,
		RelevantDocIDs: req.RelevantDocIDs,
	})
	if err != nil {
		if rt.apiMetrics != nil {
			rt.apiMetrics.RecordFeedback(rt.serviceName, "error")
		}
		writeError(w, err)
		return
	}

	if rt.apiMetrics != nil {
		rt.apiMetrics.RecordFeedback(rt.serviceName, "ok")
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (rt *Router) upsertDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		ID         string   `json:"id"`
		Title      string   `json:"title"`
		Body       string   `json:"body"`
		Sensitive  bool     `json:"sensitive"`
		Department string   `json:"department"`
		Tags       []string `json:"tags"`
		Author     string   `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	doc := &domain.Document{
		ID:         req.ID,
		Title:      req.Title,
		Body:       req.Body,
		Sensitive:  req.Sensitive,
		Department: req.Department,
		Tags:       req.Tags,
		Author:     req.Author,
	}
	if err := rt.documents.Upsert(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/conversations/")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	turns, err := rt.conversations.History(r.Context(), sessionID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "turns": turns})
}

func (rt *Router) listQueryLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	subject := subjectFromContext(r.Context())
	if subject == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "subject is required"})
		return
	}

	records, err := rt.queryLogs.ListBySubject(r.Context(), subject, queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query_logs": records})
}

func (rt *Router) getAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	summary, err := rt.analytics.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) relationshipAdmin(w http.ResponseWriter, r *http.Request) {
	if rt.relationships == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "relationship administration is handled by the external policy service"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		tuples, err := rt.relationships.ListRelationships(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]map[string]string, 0, len(tuples))
		for _, tuple := range tuples {
			out = append(out, map[string]string{"subject": tuple[0], "relation": tuple[1], "object": tuple[2]})
		}
		writeJSON(w, http.StatusOK, map[string]any{"relationships": out})

	case http.MethodPost, http.MethodDelete:
		var req struct {
			Subject  string `json:"subject"`
			Relation string `json:"relation"`
			Object   string `json:"object"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if req.Subject == "" || req.Relation == "" || req.Object == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject, relation and object are required"})
			return
		}

		var err error
		if r.Method == http.MethodPost {
			err = rt.relationships.AddRelationship(r.Context(), req.Subject, req.Relation, req.Object)
		} else {
			err = rt.relationships.RemoveRelationship(r.Context(), req.Subject, req.Relation, req.Object)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
