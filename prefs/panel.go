package prefs

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/feedfilter/activity"
)

// Store is what the panel reads and writes. Both Bridge and Client
// satisfy it.
type Store interface {
	LoadFilters(ctx context.Context) activity.ExclusionSet
	StoreFilters(ctx context.Context, set activity.ExclusionSet) error
}

// ReloadFunc performs the full reload that follows an apply.
type ReloadFunc func(ctx context.Context) error

// CategoryState is one checkbox of the panel. Checked means shown.
type CategoryState struct {
	ID      activity.Category `json:"id"`
	Label   string            `json:"label"`
	Checked bool              `json:"checked"`
}

var labels = map[activity.Category]string{
	activity.ConnectionPost:            "Posts by connections",
	activity.ConnectionShare:           "Shares by connections",
	activity.ConnectionComment:         "Comments by connections",
	activity.ConnectionReaction:        "Reactions by connections",
	activity.ConnectionWorkAnniversary: "Work anniversaries",
	activity.ConnectionJobUpdate:       "Job changes",
	activity.FolloweePost:              "Posts by people you follow",
	activity.FolloweeComment:           "Comments by people you follow",
	activity.GroupPost:                 "Group posts",
	activity.PromotedPost:              "Promoted posts",
	activity.JobRecommendation:         "Job recommendations",
}

// Label returns the display name of a category.
func Label(c activity.Category) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// States projects an exclusion set onto the full category list.
func States(set activity.ExclusionSet) []CategoryState {
	cats := activity.Categories()
	out := make([]CategoryState, len(cats))
	for i, c := range cats {
		out[i] = CategoryState{ID: c, Label: Label(c), Checked: !set.Contains(c)}
	}
	return out
}

// ExclusionFromChecked turns checkbox states into the set of unchecked
// categories. Categories missing from checked count as shown.
func ExclusionFromChecked(checked map[string]bool) (activity.ExclusionSet, []string) {
	var ids []string
	for id, on := range checked {
		if !on {
			ids = append(ids, id)
		}
	}
	return activity.ParseExclusionSet(ids)
}

// Panel is the HTTP backend of the preference popup.
type Panel struct {
	store  Store
	reload ReloadFunc
	logger *slog.Logger
}

// NewPanel creates a Panel. reload may be nil, in which case apply only
// stores.
func NewPanel(store Store, reload ReloadFunc, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Panel{store: store, reload: reload, logger: logger}
}

// Handler returns the panel routes.
//
//	GET  /                 HTML popup
//	POST /apply            form submit from the popup
//	GET  /api/categories   every category with its checked state
//	GET  /api/filters      stored exclusion set
//	PUT  /api/filters      replace the exclusion set
//	POST /api/apply        {"checked":{"promoted_post":false}} then reload
func (p *Panel) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", p.handlePage)
	r.Post("/apply", p.handleFormApply)
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", p.handleCategories)
		r.Get("/filters", p.handleGetFilters)
		r.Put("/filters", p.handlePutFilters)
		r.Post("/apply", p.handleApply)
	})
	return r
}

func (p *Panel) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, States(p.store.LoadFilters(r.Context())))
}

func (p *Panel) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, p.store.LoadFilters(r.Context()).Strings())
}

func (p *Panel) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		jsonErr(w, "body must be a JSON list of category ids", http.StatusBadRequest)
		return
	}
	set, rejected := activity.ParseExclusionSet(ids)
	if len(rejected) > 0 {
		jsonErr(w, "unrecognized categories: "+strings.Join(rejected, ", "), http.StatusBadRequest)
		return
	}
	if err := p.store.StoreFilters(r.Context(), set); err != nil {
		p.logger.ErrorContext(r.Context(), "prefs: panel store failed", "error", err)
		jsonErr(w, "store failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, set.Strings())
}

type applyRequest struct {
	Checked map[string]bool `json:"checked"`
}

func (p *Panel) handleApply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	set, rejected := ExclusionFromChecked(req.Checked)
	if len(rejected) > 0 {
		jsonErr(w, "unrecognized categories: "+strings.Join(rejected, ", "), http.StatusBadRequest)
		return
	}
	if err := p.apply(r.Context(), set); err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "applied", "filters": set.Strings()})
}

// handleFormApply treats every category whose checkbox was not submitted
// as unchecked.
func (p *Panel) handleFormApply(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	checked := make(map[string]bool)
	for _, c := range activity.Categories() {
		checked[string(c)] = false
	}
	for _, id := range r.PostForm["shown"] {
		checked[id] = true
	}
	set, _ := ExclusionFromChecked(checked)
	if err := p.apply(r.Context(), set); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "./", http.StatusSeeOther)
}

func (p *Panel) apply(ctx context.Context, set activity.ExclusionSet) error {
	if err := p.store.StoreFilters(ctx, set); err != nil {
		p.logger.ErrorContext(ctx, "prefs: apply store failed", "error", err)
		return err
	}
	if p.reload == nil {
		return nil
	}
	if err := p.reload(ctx); err != nil {
		p.logger.ErrorContext(ctx, "prefs: apply reload failed", "error", err)
		return err
	}
	return nil
}

var pageTmpl = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>feedfilter</title>
<style>
body{font-family:system-ui,sans-serif;max-width:420px;margin:1.5rem auto;padding:0 1rem;color:#222}
h1{font-size:1.2rem;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
label{display:block;padding:.25rem 0}
button{margin-top:1rem}
</style></head><body>
<h1>Show in feed</h1>
<form method="post" action="apply">
{{- range .}}
<label><input type="checkbox" name="shown" value="{{.ID}}"{{if .Checked}} checked{{end}}> {{.Label}}</label>
{{- end}}
<button type="submit">Apply</button>
</form>
</body></html>`))

func (p *Panel) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, States(p.store.LoadFilters(r.Context()))); err != nil {
		p.logger.ErrorContext(r.Context(), "prefs: render panel", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
