package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/intake-agent/pkg/logging"
)

const (
	schemeDisclaimer  = "Final eligibility is determined by the concerned government department."
	defaultMaxResults = 10
	maxBodyBytes      = 64 << 10
)

// LegalAdvisor answers legal questions.
type LegalAdvisor interface {
	LegalAdvice(ctx context.Context, issue, language string) (string, error)
}

// Handler serves the scheme, lawyer and legal-advice lookups.
type Handler struct {
	search     Searcher
	advisor    LegalAdvisor
	maxResults int
	logger     *logging.Logger
}

func NewHandler(search Searcher, advisor LegalAdvisor, maxResults int, logger *logging.Logger) *Handler {
	if search == nil {
		panic("advisory: searcher cannot be nil")
	}
	if advisor == nil {
		advisor = NewAdvisor(nil)
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{search: search, advisor: advisor, maxResults: maxResults, logger: logger}
}

// Routes mounts the advisory endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/find-schemes", h.FindSchemes)
	r.Post("/find-lawyers", h.FindLawyers)
	r.Post("/legal-advice", h.LegalAdvice)
}

type schemesResponse struct {
	QueryState string   `json:"query_state"`
	Count      int      `json:"count"`
	Schemes    []Result `json:"schemes"`
	Disclaimer string   `json:"disclaimer"`
}

// FindSchemes handles POST /find-schemes.
func (h *Handler) FindSchemes(w http.ResponseWriter, r *http.Request) {
	var profile Profile
	if !h.decode(w, r, &profile) {
		return
	}
	if missing := profile.missing(); len(missing) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing required fields", "fields": missing})
		return
	}

	schemes, err := h.search.Search(r.Context(), schemeQuery(profile), h.maxResults)
	if err != nil {
		h.logger.Error("scheme search failed", "state", profile.State, "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "search failed"})
		return
	}

	if schemes == nil {
		schemes = []Result{}
	}
	h.writeJSON(w, http.StatusOK, schemesResponse{
		QueryState: profile.State,
		Count:      len(schemes),
		Schemes:    schemes,
		Disclaimer: schemeDisclaimer,
	})
}

type lawyerRequest struct {
	Issue    string `json:"issue"`
	Location string `json:"location"`
}

type lawyersResponse struct {
	Issue    string   `json:"issue"`
	Location string   `json:"location"`
	Count    int      `json:"count"`
	Results  []Result `json:"results"`
}

// FindLawyers handles POST /find-lawyers.
func (h *Handler) FindLawyers(w http.ResponseWriter, r *http.Request) {
	var req lawyerRequest
	if !h.decode(w, r, &req) {
		return
	}
	var missing []string
	if strings.TrimSpace(req.Issue) == "" {
		missing = append(missing, "issue")
	}
	if strings.TrimSpace(req.Location) == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing required fields", "fields": missing})
		return
	}

	results, err := h.search.Search(r.Context(), lawyerQuery(req.Issue, req.Location), h.maxResults)
	if err != nil {
		h.logger.Error("lawyer search failed", "location", req.Location, "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "search failed"})
		return
	}

	if results == nil {
		results = []Result{}
	}
	h.writeJSON(w, http.StatusOK, lawyersResponse{
		Issue:    req.Issue,
		Location: req.Location,
		Count:    len(results),
		Results:  results,
	})
}

type adviceRequest struct {
	Issue    string `json:"issue"`
	Language string `json:"language"`
}

// LegalAdvice handles POST /legal-advice. Model failures are reported in the
// body as {"error": ...} with status 200, which is what the frontend reads.
func (h *Handler) LegalAdvice(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Issue) == "" {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing required fields", "fields": []string{"issue"}})
		return
	}

	advice, err := h.advisor.LegalAdvice(r.Context(), req.Issue, req.Language)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			h.writeJSON(w, http.StatusOK, map[string]string{"error": notConfiguredMessage})
			return
		}
		h.logger.Warn("legal advice failed", "error", err)
		h.writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"advice": advice})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.Warn("failed to decode advisory request", "path", r.URL.Path, "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
