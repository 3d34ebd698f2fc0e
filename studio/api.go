package main

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/bannerstage-labs/bannerstage-go/internal/capture"
	"github.com/bannerstage-labs/bannerstage-go/internal/control"
	"github.com/bannerstage-labs/bannerstage-go/internal/ingest"
	"github.com/bannerstage-labs/bannerstage-go/internal/orchestrator"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/activitylog"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/auth"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/httpserver"
	"github.com/bannerstage-labs/bannerstage-go/internal/repo"
)

type studioAPI struct {
	logger         *slog.Logger
	ingest         *ingest.Service
	orch           *orchestrator.Orchestrator
	bus            *control.Bus
	capture        *capture.Service
	store          repo.WorkspaceStore
	db             *sql.DB
	uploadMaxBytes int64
}

func newStudioAPI(
	logger *slog.Logger,
	ingestSvc *ingest.Service,
	orch *orchestrator.Orchestrator,
	bus *control.Bus,
	captureSvc *capture.Service,
	store repo.WorkspaceStore,
	db *sql.DB,
	uploadMaxBytes int64,
) *studioAPI {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = 256 << 20
	}
	return &studioAPI{
		logger:         logger,
		ingest:         ingestSvc,
		orch:           orch,
		bus:            bus,
		capture:        captureSvc,
		store:          store,
		db:             db,
		uploadMaxBytes: uploadMaxBytes,
	}
}

func (api *studioAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /agent.js", handleAgentScript)

	mux.HandleFunc("POST /uploads", api.handleUpload)
	mux.HandleFunc("GET /creatives/{creative_id}/files/{path...}", api.handleServeFile)

	mux.HandleFunc("GET /creatives", api.handleListCreatives)
	mux.HandleFunc("POST /creatives", api.handleAddCreative)
	mux.HandleFunc("DELETE /creatives/selected", api.handleRemoveSelected)
	mux.HandleFunc("DELETE /creatives/{creative_id}", api.handleRemoveCreative)
	mux.HandleFunc("POST /creatives/{creative_id}/selection", api.handleToggleSelection)
	mux.HandleFunc("POST /creatives/selection/all", api.handleSelectAll)
	mux.HandleFunc("DELETE /creatives/selection", api.handleDeselectAll)
	mux.HandleFunc("POST /creatives/{creative_id}/ready", api.handleSetReady)
	mux.HandleFunc("POST /creatives/{creative_id}/capture", api.handleCapture)

	mux.HandleFunc("POST /commands", api.handleCommand)
	mux.HandleFunc("POST /groups/{group_id}/reload", api.handleReloadGroup)
	mux.HandleFunc("GET /groups/global-control", api.handleGlobalControlGroup)

	mux.HandleFunc("GET /channel", api.handleChannelStream)
	mux.HandleFunc("POST /channel", api.handleChannelPost)

	mux.HandleFunc("PUT /workspace", api.handleSaveWorkspace)
	mux.HandleFunc("GET /workspace", api.handleLoadWorkspace)
	mux.HandleFunc("PUT /presets/{name}", api.handleSavePreset)
	mux.HandleFunc("GET /presets", api.handleListPresets)
	mux.HandleFunc("GET /presets/{name}", api.handleGetPreset)
	mux.HandleFunc("DELETE /presets/{name}", api.handleDeletePreset)
	mux.HandleFunc("POST /presets/{name}/apply", api.handleApplyPreset)
}

type creativeDTO struct {
	ID             string `json:"id"`
	SourceLocation string `json:"url"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Round          int    `json:"round"`
	Version        int    `json:"version"`
	GroupID        string `json:"group_id,omitempty"`
	RenderKey      string `json:"render_key"`
	State          string `json:"state"`
	LoadError      string `json:"load_error,omitempty"`
	Selected       bool   `json:"selected"`
}

func (api *studioAPI) toDTO(c orchestrator.Creative, selected map[string]struct{}) creativeDTO {
	_, isSelected := selected[c.ID]
	return creativeDTO{
		ID:             c.ID,
		SourceLocation: c.SourceLocation,
		Width:          c.Width,
		Height:         c.Height,
		Round:          c.Round,
		Version:        c.Version,
		GroupID:        c.GroupID,
		RenderKey:      c.RenderKey,
		State:          string(c.State),
		LoadError:      c.LoadError,
		Selected:       isSelected,
	}
}

func (api *studioAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 && r.ContentLength > api.uploadMaxBytes {
		api.writeError(w, r, http.StatusRequestEntityTooLarge, "upload_too_large")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, api.uploadMaxBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_multipart")
		return
	}

	var (
		bundle  []byte
		groupID string
		round   int
		version int
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				api.writeError(w, r, http.StatusRequestEntityTooLarge, "upload_too_large")
				return
			}
			api.writeError(w, r, http.StatusBadRequest, "invalid_multipart")
			return
		}

		switch part.FormName() {
		case "file":
			bundle, err = io.ReadAll(part)
			_ = part.Close()
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					api.writeError(w, r, http.StatusRequestEntityTooLarge, "upload_too_large")
					return
				}
				api.writeError(w, r, http.StatusBadRequest, "invalid_multipart")
				return
			}
		case "group_id":
			groupID = readFormValue(part, &err)
		case "round":
			round = readFormInt(part, &err)
		case "version":
			version = readFormInt(part, &err)
		default:
			_ = part.Close()
		}
		if err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_form_field")
			return
		}
	}

	if len(bundle) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "file_required")
		return
	}

	result, err := api.ingest.Ingest(r.Context(), bundle, groupID)
	if err != nil {
		api.writeIngestionError(w, r, err)
		return
	}

	url := "/creatives/" + result.CreativeID + "/files/" + result.EntryPath
	api.orch.AddCreatives(orchestrator.Creative{
		ID:             result.CreativeID,
		SourceLocation: url,
		Width:          result.Width,
		Height:         result.Height,
		Round:          round,
		Version:        version,
		GroupID:        groupID,
	})

	api.recordActivity(r, "upload", "creative", result.CreativeID, map[string]any{
		"width":    result.Width,
		"height":   result.Height,
		"group_id": groupID,
	})

	api.writeJSON(w, http.StatusCreated, map[string]any{
		"id":     result.CreativeID,
		"url":    url,
		"width":  result.Width,
		"height": result.Height,
	})
}

func (api *studioAPI) writeIngestionError(w http.ResponseWriter, r *http.Request, err error) {
	switch ingest.KindOf(err) {
	case ingest.KindNoEntryDocument:
		api.writeError(w, r, http.StatusUnprocessableEntity, string(ingest.KindNoEntryDocument))
	case ingest.KindDimensionsUndetectable:
		api.writeError(w, r, http.StatusUnprocessableEntity, string(ingest.KindDimensionsUndetectable))
	case ingest.KindPathTraversal:
		api.writeError(w, r, http.StatusBadRequest, string(ingest.KindPathTraversal))
	case ingest.KindMalformed:
		api.writeError(w, r, http.StatusBadRequest, string(ingest.KindMalformed))
	default:
		api.logger.Error("ingest failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *studioAPI) handleServeFile(w http.ResponseWriter, r *http.Request) {
	creativeID := strings.TrimSpace(r.PathValue("creative_id"))
	rel := r.PathValue("path")
	if creativeID == "" || rel == "" {
		api.writeError(w, r, http.StatusBadRequest, "path_required")
		return
	}

	resolved, err := api.ingest.ResolvePath(creativeID, rel)
	if err != nil {
		api.writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	f, err := os.Open(resolved)
	if err != nil {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}

	contentType := mime.TypeByExtension(path.Ext(rel))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (api *studioAPI) handleListCreatives(w http.ResponseWriter, r *http.Request) {
	selected := selectionSet(api.orch.Selected())
	list := api.orch.List()
	out := make([]creativeDTO, 0, len(list))
	for _, c := range list {
		out = append(out, api.toDTO(c, selected))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"creatives": out})
}

type addCreativeRequest struct {
	SourceLocation string `json:"url"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Round          int    `json:"round"`
	Version        int    `json:"version"`
	GroupID        string `json:"group_id"`
}

func (api *studioAPI) handleAddCreative(w http.ResponseWriter, r *http.Request) {
	var req addCreativeRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.SourceLocation) == "" {
		api.writeError(w, r, http.StatusBadRequest, "url_required")
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		api.writeError(w, r, http.StatusBadRequest, "dimensions_required")
		return
	}

	added := api.orch.AddCreatives(orchestrator.Creative{
		SourceLocation: strings.TrimSpace(req.SourceLocation),
		Width:          req.Width,
		Height:         req.Height,
		Round:          req.Round,
		Version:        req.Version,
		GroupID:        strings.TrimSpace(req.GroupID),
	})
	if len(added) == 0 {
		api.writeError(w, r, http.StatusConflict, "already_exists")
		return
	}
	c := added[0]

	// Static images never run an agent; they are ready the moment they exist.
	if staticImageSource(c.SourceLocation) {
		_ = api.orch.SetReady(c.ID)
		c.State = orchestrator.StateReady
	}

	api.recordActivity(r, "add_creative", "creative", c.ID, map[string]any{"url": c.SourceLocation})
	api.writeJSON(w, http.StatusCreated, api.toDTO(c, nil))
}

func (api *studioAPI) handleRemoveCreative(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("creative_id"))
	if err := api.orch.RemoveCreative(id); err != nil {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.recordActivity(r, "remove_creative", "creative", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (api *studioAPI) handleRemoveSelected(w http.ResponseWriter, r *http.Request) {
	removed := api.orch.RemoveSelected()
	for _, id := range removed {
		api.recordActivity(r, "remove_creative", "creative", id, map[string]any{"via": "selection"})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (api *studioAPI) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("creative_id"))
	selected, err := api.orch.ToggleSelection(id)
	if err != nil {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"id": id, "selected": selected})
}

func (api *studioAPI) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	api.orch.SelectAll()
	api.writeJSON(w, http.StatusOK, map[string]any{"selected": api.orch.Selected()})
}

func (api *studioAPI) handleDeselectAll(w http.ResponseWriter, r *http.Request) {
	api.orch.DeselectAll()
	w.WriteHeader(http.StatusNoContent)
}

func (api *studioAPI) handleSetReady(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("creative_id"))
	if err := api.orch.SetReady(id); err != nil {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *studioAPI) handleCapture(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("creative_id"))
	creative, ok := api.orch.Get(id)
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}

	img, err := api.capture.Capture(r.Context(), creative)
	if err != nil {
		var capErr *capture.CaptureError
		if errors.As(err, &capErr) {
			status := http.StatusUnprocessableEntity
			if capErr.Reason == capture.ReasonTimeout {
				status = http.StatusGatewayTimeout
			}
			api.writeError(w, r, status, string(capErr.Reason))
			return
		}
		api.logger.Error("capture failed", "creative_id", id, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	api.recordActivity(r, "capture", "creative", id, map[string]any{
		"width":  img.Width,
		"height": img.Height,
	})
	api.writeJSON(w, http.StatusOK, map[string]any{
		"image":  "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
		"width":  img.Width,
		"height": img.Height,
	})
}

type commandRequest struct {
	Action   string `json:"action"`
	BannerID string `json:"bannerId"`
	GroupID  string `json:"groupId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (api *studioAPI) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	msg := control.Message{
		Action:   strings.TrimSpace(req.Action),
		BannerID: strings.TrimSpace(req.BannerID),
		GroupID:  strings.TrimSpace(req.GroupID),
		Width:    req.Width,
		Height:   req.Height,
	}
	if err := api.orch.SendCommand(msg); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrNotFound), errors.Is(err, orchestrator.ErrGroupNotFound):
			api.writeError(w, r, http.StatusNotFound, "target_not_found")
		case errors.Is(err, orchestrator.ErrGroupNotReady):
			api.writeError(w, r, http.StatusConflict, "group_not_ready")
		default:
			api.writeError(w, r, http.StatusBadRequest, "invalid_command")
		}
		return
	}

	target := msg.Target()
	api.recordActivity(r, "command", targetKind(target), target.ID, map[string]any{"action": msg.Action})
	api.writeJSON(w, http.StatusAccepted, map[string]any{"status": "dispatched"})
}

type reloadRequest struct {
	Mode string `json:"mode"`
}

func (api *studioAPI) handleReloadGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	var req reloadRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	switch req.Mode {
	case "soft":
		if err := api.orch.SoftReloadGroup(groupID); err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrGroupNotFound):
				api.writeError(w, r, http.StatusNotFound, "group_not_found")
			case errors.Is(err, orchestrator.ErrGroupNotReady):
				api.writeError(w, r, http.StatusConflict, "group_not_ready")
			default:
				api.writeError(w, r, http.StatusBadRequest, "invalid_command")
			}
			return
		}
		api.recordActivity(r, "soft_reload", "group", groupID, nil)
		api.writeJSON(w, http.StatusAccepted, map[string]any{"status": "restarting"})

	case "hard":
		reloaded, err := api.orch.HardReloadGroup(groupID)
		if err != nil {
			api.writeError(w, r, http.StatusNotFound, "group_not_found")
			return
		}
		out := make([]creativeDTO, 0, len(reloaded))
		for _, c := range reloaded {
			out = append(out, api.toDTO(c, nil))
		}
		api.recordActivity(r, "hard_reload", "group", groupID, map[string]any{"members": len(reloaded)})
		api.writeJSON(w, http.StatusOK, map[string]any{"creatives": out})

	default:
		api.writeError(w, r, http.StatusBadRequest, "invalid_reload_mode")
	}
}

func (api *studioAPI) handleGlobalControlGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := api.orch.GlobalControlGroup()
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "no_group")
		return
	}
	members := api.orch.GroupMembers(groupID)
	ready := true
	for _, id := range members {
		if !api.orch.IsReady(id) {
			ready = false
			break
		}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"members":  members,
		"ready":    ready,
	})
}

func (api *studioAPI) handleSaveWorkspace(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	records := toRecords(api.orch.List())
	if err := api.store.SaveWorkspace(r.Context(), records); err != nil {
		api.logger.Error("save workspace failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"saved": len(records)})
}

func (api *studioAPI) handleLoadWorkspace(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	records, err := api.store.LoadWorkspace(r.Context())
	if err != nil {
		// Corrupt or missing state degrades to an empty workspace.
		api.logger.Warn("load workspace failed, serving empty", "error", err)
		records = nil
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"creatives": records})
}

func (api *studioAPI) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		api.writeError(w, r, http.StatusBadRequest, "name_required")
		return
	}
	records := toRecords(api.orch.List())
	if err := api.store.SavePreset(r.Context(), name, records); err != nil {
		api.logger.Error("save preset failed", "preset", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.recordActivity(r, "save_preset", "preset", name, map[string]any{"creatives": len(records)})
	api.writeJSON(w, http.StatusOK, map[string]any{"name": name, "creatives": len(records)})
}

func (api *studioAPI) handleListPresets(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	presets, err := api.store.ListPresets(r.Context())
	if err != nil {
		api.logger.Warn("list presets failed, serving empty", "error", err)
		presets = nil
	}
	type presetDTO struct {
		Name      string `json:"name"`
		Creatives int    `json:"creatives"`
	}
	out := make([]presetDTO, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetDTO{Name: p.Name, Creatives: len(p.Creatives)})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"presets": out})
}

func (api *studioAPI) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))
	preset, err := api.store.GetPreset(r.Context(), name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get preset failed", "preset", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"name":       preset.Name,
		"creatives":  preset.Creatives,
		"updated_at": preset.UpdatedAt,
	})
}

func (api *studioAPI) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))
	if err := api.store.DeletePreset(r.Context(), name); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("delete preset failed", "preset", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *studioAPI) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		api.writeError(w, r, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))
	preset, err := api.store.GetPreset(r.Context(), name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("apply preset failed", "preset", name, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	api.orch.Restore(fromRecords(preset.Creatives))
	api.recordActivity(r, "apply_preset", "preset", name, map[string]any{"creatives": len(preset.Creatives)})
	api.writeJSON(w, http.StatusOK, map[string]any{"applied": name, "creatives": len(preset.Creatives)})
}

func toRecords(creatives []orchestrator.Creative) []repo.CreativeRecord {
	out := make([]repo.CreativeRecord, 0, len(creatives))
	for _, c := range creatives {
		out = append(out, repo.CreativeRecord{
			ID:             c.ID,
			SourceLocation: c.SourceLocation,
			Width:          c.Width,
			Height:         c.Height,
			Round:          c.Round,
			Version:        c.Version,
			GroupID:        c.GroupID,
		})
	}
	return out
}

func fromRecords(records []repo.CreativeRecord) []orchestrator.Creative {
	out := make([]orchestrator.Creative, 0, len(records))
	for _, rec := range records {
		out = append(out, orchestrator.Creative{
			ID:             rec.ID,
			SourceLocation: rec.SourceLocation,
			Width:          rec.Width,
			Height:         rec.Height,
			Round:          rec.Round,
			Version:        rec.Version,
			GroupID:        rec.GroupID,
		})
	}
	return out
}

func selectionSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func targetKind(t control.Target) string {
	if t.Kind == control.TargetGroup {
		return "group"
	}
	return "creative"
}

func staticImageSource(loc string) bool {
	loc = strings.ToLower(loc)
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif"} {
		if strings.HasSuffix(loc, ext) {
			return true
		}
	}
	return false
}

func readFormValue(part io.ReadCloser, errOut *error) string {
	raw, err := io.ReadAll(io.LimitReader(part, 4096))
	_ = part.Close()
	if err != nil {
		*errOut = err
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func readFormInt(part io.ReadCloser, errOut *error) int {
	raw := readFormValue(part, errOut)
	if *errOut != nil || raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errOut = err
		return 0
	}
	return n
}

func (api *studioAPI) recordActivity(r *http.Request, action, kind, targetID string, metadata map[string]any) {
	if api.db == nil {
		return
	}
	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Subject != "" {
		actor = identity.Subject
	}
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	entry := activitylog.Entry{
		Actor:      actor,
		RequestID:  requestID,
		Action:     action,
		TargetKind: kind,
		TargetID:   targetID,
		Metadata:   metadata,
	}
	if err := activitylog.Insert(r.Context(), api.db, entry); err != nil {
		api.logger.Warn("activity log write failed", "action", action, "error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *studioAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *studioAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": requestID,
	})
}
