package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/CarpseDeam/aura-backend/internal/conductor"
	"github.com/CarpseDeam/aura-backend/internal/llmgateway"
	"github.com/CarpseDeam/aura-backend/internal/planner"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// userIDHeader is the header the external auth layer is expected to set
// after resolving a request's token, per spec.md §6: "the auth layer
// (external) resolves user id before handing the socket [or request] to the
// core." This binary never validates credentials itself.
const userIDHeader = "X-User-Id"

func userIDFrom(r *http.Request) string {
	if v := r.Header.Get(userIDHeader); v != "" {
		return v
	}
	return r.URL.Query().Get("user_id")
}

// router assembles the Core API surface named in spec.md §6, plus /metrics
// and the WebSocket endpoint the Notification Bus fans out over.
//
// Grounded on startHTTPServer (internal/gateway/http_server.go):
// one stdlib http.ServeMux, /metrics mounted via promhttp.Handler when
// enabled, a dedicated handler type for the WebSocket upgrade.
func (a *app) router() http.Handler {
	mux := http.NewServeMux()

	if a.cfg.Observability.Metrics.Enabled {
		mux.Handle("/metrics", metricsHandler())
	}
	mux.HandleFunc("/healthz", a.handleHealthz)

	mux.HandleFunc("POST /projects/{name}/prompt", a.handlePrompt)
	mux.HandleFunc("POST /projects/dispatch", a.handleDispatch)
	mux.HandleFunc("POST /projects/{name}/stop", a.handleStop)
	mux.HandleFunc("POST /projects/{name}", a.handleCreateProject)
	mux.HandleFunc("DELETE /projects/{name}", a.handleDeleteProject)
	mux.HandleFunc("GET /projects", a.handleListProjects)
	mux.HandleFunc("POST /projects/{name}/load", a.handleLoadProject)
	mux.HandleFunc("GET /projects/workspace/{name}/files", a.handleFileTree)
	mux.HandleFunc("GET /projects/workspace/{name}/file", a.handleReadFile)
	mux.HandleFunc("POST /projects/workspace/{name}/file", a.handleWriteFile)

	mux.Handle(a.cfg.Server.WSPath, a.newWSHandler())

	return mux
}

func (a *app) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type promptRequest struct {
	Prompt  string `json:"prompt"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

// handlePrompt backs `POST /projects/{name}/prompt`: classify intent, then
// either run the Planner Pipeline and enqueue a mission (202) or answer
// inline as a streamed chat reply (200), per spec.md §4.5 and §6.
func (a *app) handlePrompt(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	if userID == "" || project == "" {
		writeError(w, http.StatusBadRequest, "missing user or project")
		return
	}

	var body promptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	conversation := make([]llmgateway.Message, 0, len(body.History))
	for _, m := range body.History {
		conversation = append(conversation, llmgateway.Message{Role: m.Role, Content: m.Content})
	}

	ctx := r.Context()
	intent := a.planner.ClassifyIntent(ctx, userID, conversation, body.Prompt)

	if intent == planner.IntentChat {
		a.runChat(ctx, userID, conversation, body.Prompt)
		writeJSON(w, http.StatusOK, map[string]string{"status": "chat dispatched"})
		return
	}

	go a.runPlanning(context.WithoutCancel(ctx), userID, project, body.Prompt)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "planning"})
}

// runChat answers a CHAT-intent prompt inline, streaming chunks to the
// user's WebSocket clients as aura_response events and posting the final
// reply as the terminal event, per spec.md §4.3 step 3's chunk-forwarding
// rule.
func (a *app) runChat(ctx context.Context, userID string, conversation []llmgateway.Message, prompt string) {
	messages := append(append([]llmgateway.Message{}, conversation...), llmgateway.Message{Role: "user", Content: prompt})

	sink := func(recordType, content, filePath string) {
		switch recordType {
		case "chunk":
			if filePath != "" {
				a.bus.BroadcastToUser(ctx, userID, &models.Event{
					Type: models.EventCodeStreamChunk, CodeFilePath: filePath, CodeChunk: content, EmittedAt: time.Now(),
				})
				return
			}
			a.bus.BroadcastToUser(ctx, userID, &models.Event{
				Type: models.EventAuraResponse, Content: content, EmittedAt: time.Now(),
			})
		case "system_log":
			a.bus.BroadcastToUser(ctx, userID, &models.Event{
				Type: models.EventSystemLog, Content: content, EmittedAt: time.Now(),
			})
		case "phase":
			a.bus.BroadcastToUser(ctx, userID, &models.Event{
				Type: models.EventPhase, Content: content, EmittedAt: time.Now(),
			})
		}
	}

	reply, err := a.gateway.Complete(ctx, userID, models.RoleChat, messages, false, "", sink)
	if err != nil {
		a.bus.BroadcastToUser(ctx, userID, &models.Event{
			Type: models.EventSystemLog, Content: err.Error(), IsError: true, EmittedAt: time.Now(),
		})
		return
	}
	a.bus.BroadcastToUser(ctx, userID, &models.Event{
		Type: models.EventAuraResponse, Content: reply, EmittedAt: time.Now(),
	})
}

// runPlanning runs the Architect and Sequencer stages and writes the result
// to the Mission Log, per spec.md §4.6's `plan(goal, conversation)` entry
// point. It never dispatches — a separate `POST /projects/dispatch` call
// starts the Conductor.
func (a *app) runPlanning(ctx context.Context, userID, project, goal string) {
	a.bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventSystemLog, Content: "Planning started.", EmittedAt: time.Now()})

	phaseSink := func(recordType, content, _ string) {
		if recordType != "phase" {
			return
		}
		a.bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventPhase, Content: content, EmittedAt: time.Now()})
	}

	architect, err := a.planner.RunArchitect(ctx, userID, project, goal, phaseSink)
	if err != nil {
		a.bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventSystemLog, Content: err.Error(), IsError: true, EmittedAt: time.Now()})
		return
	}

	plan, err := a.planner.RunSequencer(ctx, userID, architect.Blueprint.FinalBlueprint, phaseSink)
	if err != nil {
		a.bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventSystemLog, Content: err.Error(), IsError: true, EmittedAt: time.Now()})
		return
	}

	if _, err := a.store.SetInitialPlan(ctx, userID, project, plan.FinalPlan, goal); err != nil {
		a.bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventSystemLog, Content: err.Error(), IsError: true, EmittedAt: time.Now()})
		return
	}

	a.bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventSystemLog, Content: "Plan ready. Dispatch to begin execution.", EmittedAt: time.Now()})
}

type dispatchRequest struct {
	ProjectName string `json:"project_name"`
}

// handleDispatch backs `POST /projects/dispatch`: starts the Conductor for
// (userID, project) in the background, rejecting a second concurrent
// mission for the same user per spec.md §5's forbidden-concurrency rule
// (enforced inside conductor.Conductor.Run via Bus.SetRunning).
func (a *app) handleDispatch(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if userID == "" || body.ProjectName == "" {
		writeError(w, http.StatusBadRequest, "missing user or project_name")
		return
	}

	go func() {
		ctx := context.Background()
		if err := a.conductor.Run(ctx, userID, body.ProjectName); err != nil && !errors.Is(err, conductor.ErrMissionAlreadyRunning) {
			a.logger.Error("mission run failed", "user_id", userID, "project", body.ProjectName, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

// handleStop backs `POST /projects/{name}/stop`.
func (a *app) handleStop(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}
	a.bus.RequestStop(userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

// handleCreateProject backs `POST /projects/{name}` → 201.
func (a *app) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	if userID == "" || project == "" {
		writeError(w, http.StatusBadRequest, "missing user or project")
		return
	}
	if err := a.workspace.CreateProject(r.Context(), userID, project); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleDeleteProject backs `DELETE /projects/{name}` → 204.
func (a *app) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	if userID == "" || project == "" {
		writeError(w, http.StatusBadRequest, "missing user or project")
		return
	}
	if err := a.workspace.DeleteProject(r.Context(), userID, project); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListProjects backs `GET /projects`.
func (a *app) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}
	names, err := a.workspace.ListProjects(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": names})
}

// handleLoadProject backs `POST /projects/{name}/load`: loads the Mission
// Log for (user, project) and, if it is empty, enqueues the pre-canned
// index_project_context task as the initial background job, matching
// spec.md §6's "may enqueue an initial-index background job."
func (a *app) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	if userID == "" || project == "" {
		writeError(w, http.StatusBadRequest, "missing user or project")
		return
	}
	log, err := a.store.Load(r.Context(), userID, project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(log.Tasks) == 0 {
		if _, err := a.store.SetInitialPlan(r.Context(), userID, project, nil, ""); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

// handleFileTree backs `GET /projects/workspace/{name}/files`.
func (a *app) handleFileTree(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	if userID == "" || project == "" {
		writeError(w, http.StatusBadRequest, "missing user or project")
		return
	}
	tree, err := a.workspace.FileTree(r.Context(), userID, project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// handleReadFile backs `GET /projects/workspace/{name}/file?path=...`.
func (a *app) handleReadFile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	path := r.URL.Query().Get("path")
	if userID == "" || project == "" || path == "" {
		writeError(w, http.StatusBadRequest, "missing user, project, or path")
		return
	}
	content, err := a.workspace.ReadFile(r.Context(), userID, project, path)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// handleWriteFile backs `POST /projects/workspace/{name}/file` → 204.
func (a *app) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	project := r.PathValue("name")
	if userID == "" || project == "" {
		writeError(w, http.StatusBadRequest, "missing user or project")
		return
	}
	var body writeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.workspace.WriteFile(r.Context(), userID, project, body.Path, body.Content); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
