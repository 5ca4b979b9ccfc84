package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/visibility-cli/internal/model"
)

// onboardingResponse bundles a domain with its active run.
type onboardingResponse struct {
	Domain   *model.Domain             `json:"domain"`
	Version  *model.DomainVersion      `json:"version"`
	Progress *model.OnboardingProgress `json:"progress"`
}

// POST /api/domains
// Body: {"url": "https://acme.dev"}
// Submitting a known URL resumes the domain's latest run instead of creating
// a duplicate.
func (rt *Router) handleCreateDomain(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}
	rawURL := strings.TrimSpace(body.URL)
	if rawURL == "" {
		return badRequest("url is required")
	}
	if _, err := url.Parse(rawURL); err != nil {
		return badRequest("url is not valid")
	}

	ctx := r.Context()
	domain, err := rt.store.GetDomainByURL(ctx, rawURL)
	if err != nil {
		return err
	}

	status := http.StatusOK
	var version *model.DomainVersion
	if domain == nil {
		status = http.StatusCreated
		domain, err = rt.store.CreateDomain(ctx, rawURL)
		if err != nil {
			return err
		}
		version, err = rt.store.CreateVersion(ctx, domain.ID)
		if err != nil {
			return err
		}
	} else {
		version, err = rt.store.GetLatestVersion(ctx, domain.ID)
		if err != nil {
			return err
		}
		if version == nil {
			version, err = rt.store.CreateVersion(ctx, domain.ID)
			if err != nil {
				return err
			}
		}
	}

	progress, err := rt.pipeline.Resume(ctx, domain.ID, version.ID)
	if err != nil {
		return err
	}

	writeJSON(w, status, onboardingResponse{Domain: domain, Version: version, Progress: progress})
	return nil
}

// GET /api/domains/{domainID}
func (rt *Router) handleGetDomain(w http.ResponseWriter, r *http.Request) error {
	domain, err := rt.store.GetDomain(r.Context(), chi.URLParam(r, "domainID"))
	if err != nil {
		return err
	}
	if domain == nil {
		return &httpError{status: http.StatusNotFound, msg: "domain not found"}
	}
	writeJSON(w, http.StatusOK, domain)
	return nil
}

// POST /api/domains/{domainID}/versions
// Starts a fresh analysis run. The cached dashboard stays served but is
// flagged stale until the new run completes.
func (rt *Router) handleCreateVersion(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	domainID := chi.URLParam(r, "domainID")

	domain, err := rt.store.GetDomain(ctx, domainID)
	if err != nil {
		return err
	}
	if domain == nil {
		return &httpError{status: http.StatusNotFound, msg: "domain not found"}
	}

	version, err := rt.store.CreateVersion(ctx, domainID)
	if err != nil {
		return err
	}
	progress, err := rt.pipeline.Resume(ctx, domainID, version.ID)
	if err != nil {
		return err
	}
	if err := rt.artifacts.MarkStale(ctx, domainID); err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, onboardingResponse{Domain: domain, Version: version, Progress: progress})
	return nil
}

// GET /api/domains/{domainID}/progress?versionId=
// Defaults to the latest run. Fetching progress initializes the row when the
// run has none yet, so a reconnecting client always gets a resumable state.
func (rt *Router) handleGetProgress(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	domainID := chi.URLParam(r, "domainID")

	versionID := r.URL.Query().Get("versionId")
	if versionID == "" {
		version, err := rt.store.GetLatestVersion(ctx, domainID)
		if err != nil {
			return err
		}
		if version == nil {
			return &httpError{status: http.StatusNotFound, msg: "domain has no analysis runs"}
		}
		versionID = version.ID
	}

	progress, err := rt.pipeline.Resume(ctx, domainID, versionID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, progress)
	return nil
}

// POST /api/domains/{domainID}/versions/{versionID}/advance
// Body: the StepData variant for the run's current stage, or empty.
func (rt *Router) handleAdvance(w http.ResponseWriter, r *http.Request) error {
	var payload model.StepData
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return badRequest("invalid step payload")
		}
	}

	progress, err := rt.pipeline.Advance(r.Context(),
		chi.URLParam(r, "domainID"), chi.URLParam(r, "versionID"), payload)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, progress)
	return nil
}

// POST /api/domains/{domainID}/versions/{versionID}/rewind
// Steps the run back one stage; a no-op at the first stage.
func (rt *Router) handleRewind(w http.ResponseWriter, r *http.Request) error {
	progress, err := rt.pipeline.Rewind(r.Context(),
		chi.URLParam(r, "domainID"), chi.URLParam(r, "versionID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, progress)
	return nil
}

// dashboardResponse pairs the cached analysis with the raw per-run rows the
// dashboard renders alongside the aggregates.
type dashboardResponse struct {
	*model.DashboardAnalysis
	AIQueryResults []model.AIQueryResult `json:"aiQueryResults"`
	Phrases        []model.Phrase        `json:"phrases"`
	Extraction     *model.ExtractionData `json:"extraction,omitempty"`
}

// GET /api/dashboard/{domainID}?versionId=
// Without versionId serves the latest completed run, computing it on first
// read. With versionId serves that run's artifact, cached or rebuilt.
func (rt *Router) handleGetDashboard(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	domainID := chi.URLParam(r, "domainID")

	analysis, err := rt.artifacts.GetForVersion(ctx, domainID, r.URL.Query().Get("versionId"))
	if err != nil {
		return err
	}

	results, err := rt.store.ListQueryResults(ctx, analysis.DomainVersionID)
	if err != nil {
		return err
	}
	phrases, err := rt.store.ListPhrases(ctx, analysis.DomainVersionID)
	if err != nil {
		return err
	}
	resp := dashboardResponse{DashboardAnalysis: analysis, AIQueryResults: results, Phrases: phrases}

	progress, err := rt.store.GetProgress(ctx, domainID, analysis.DomainVersionID)
	if err != nil {
		return err
	}
	if progress != nil {
		resp.Extraction = progress.Steps.Extraction
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

// POST /api/dashboard/{domainID}/first-time-analysis
// Body: {"versionId": "..."}
// Idempotent: a run whose artifact is already cached returns it unchanged.
func (rt *Router) handleFirstTimeAnalysis(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		VersionID string `json:"versionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}
	if body.VersionID == "" {
		return badRequest("versionId is required")
	}

	ctx := r.Context()
	domainID := chi.URLParam(r, "domainID")
	if err := rt.artifacts.FirstTimeAnalysis(ctx, domainID, body.VersionID); err != nil {
		return err
	}
	analysis, err := rt.artifacts.GetOrCompute(ctx, domainID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysis)
	return nil
}

// GET /api/dashboard/{domainID}/competitors
func (rt *Router) handleGetCompetitors(w http.ResponseWriter, r *http.Request) error {
	analysis, err := rt.artifacts.GetCompetitors(r.Context(), chi.URLParam(r, "domainID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysis)
	return nil
}

// POST /api/dashboard/{domainID}/competitors
// Body: {"competitors": ["Rival Inc", "Other Co"]}
func (rt *Router) handlePostCompetitors(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Competitors []string `json:"competitors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}
	if len(body.Competitors) == 0 {
		return badRequest("competitors is required")
	}

	analysis, err := rt.artifacts.RecomputeCompetitors(r.Context(),
		chi.URLParam(r, "domainID"), body.Competitors)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysis)
	return nil
}

// GET /api/dashboard/{domainID}/suggested-competitors?refresh=true
func (rt *Router) handleSuggestedCompetitors(w http.ResponseWriter, r *http.Request) error {
	refresh := r.URL.Query().Get("refresh") == "true"
	suggestions, err := rt.artifacts.SuggestedCompetitors(r.Context(),
		chi.URLParam(r, "domainID"), refresh)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, suggestions)
	return nil
}
