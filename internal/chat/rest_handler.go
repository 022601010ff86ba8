package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"issuechat/infrastructure"
	"issuechat/internal/messaging"
	"issuechat/internal/sessions"
)

type JSONHandler struct {
	sessions       *sessions.Manager
	messages       *messaging.Manager
	archiveOnClose bool
	logger         *slog.Logger
}

func NewJSONHandler(sessionManager *sessions.Manager, messageManager *messaging.Manager, archiveOnClose bool, logger *slog.Logger) *JSONHandler {
	return &JSONHandler{
		sessions:       sessionManager,
		messages:       messageManager,
		archiveOnClose: archiveOnClose,
		logger:         infrastructure.Discard(logger),
	}
}

// Register mounts the chat routes on r.
func (h *JSONHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects/{projectId}/chat-sessions", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectId}/chat-sessions", h.ListProjectSessions).Methods(http.MethodGet)

	r.HandleFunc("/chat-sessions", h.ListMySessions).Methods(http.MethodGet)
	r.HandleFunc("/chat-sessions/{id}", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/chat-sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/chat-sessions/{id}/status", h.UpdateStatus).Methods(http.MethodPut)
	r.HandleFunc("/chat-sessions/{id}/task-type", h.UpdateTaskType).Methods(http.MethodPut)
	r.HandleFunc("/chat-sessions/{id}/participants", h.AddParticipant).Methods(http.MethodPost)
	r.HandleFunc("/chat-sessions/{id}/participants/{userId}", h.ChangeParticipantRole).Methods(http.MethodPut)
	r.HandleFunc("/chat-sessions/{id}/participants/{userId}", h.RemoveParticipant).Methods(http.MethodDelete)
	r.HandleFunc("/chat-sessions/{id}/participants/{userId}/role", h.ResolveParticipantRole).Methods(http.MethodGet)
	r.HandleFunc("/chat-sessions/{id}/messages", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chat-sessions/{id}/messages", h.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/chat-sessions/{id}/export", h.ExportLog).Methods(http.MethodGet)
	r.HandleFunc("/chat-sessions/{id}/archive", h.ArchiveSession).Methods(http.MethodPost)

	r.HandleFunc("/chat-messages/{id}", h.GetMessage).Methods(http.MethodGet)
	r.HandleFunc("/chat-messages/{id}", h.DeleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/chat-messages/{id}/content", h.UpdateTextMessage).Methods(http.MethodPut)
	r.HandleFunc("/chat-messages/{id}/url", h.UpdateFileURL).Methods(http.MethodPut)
}

type sessionResponse struct {
	ID           string                              `json:"id"`
	ProjectID    string                              `json:"projectId"`
	TaskID       string                              `json:"taskId"`
	TaskType     sessions.TaskType                   `json:"taskType"`
	Status       sessions.Status                     `json:"status"`
	Participants map[string]sessions.ParticipantRole `json:"participants"`
	CreatedAt    time.Time                           `json:"createdAt"`
	UpdatedAt    time.Time                           `json:"updatedAt"`
}

func toSessionResponse(s *sessions.ChatSession) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		TaskID:       s.TaskID,
		TaskType:     s.TaskType,
		Status:       s.Status,
		Participants: s.Participants.Roles(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toSessionList(list []*sessions.ChatSession) []sessionResponse {
	out := make([]sessionResponse, len(list))
	for i, s := range list {
		out[i] = toSessionResponse(s)
	}
	return out
}

type messageResponse struct {
	ID            string                `json:"id"`
	ChatSessionID string                `json:"chatSessionId"`
	SenderID      string                `json:"senderId"`
	ContentType   messaging.ContentType `json:"contentType"`
	Content       string                `json:"content,omitempty"`
	URL           string                `json:"url,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

func toMessageResponse(m *messaging.ChatMessage) messageResponse {
	return messageResponse{
		ID:            m.ID,
		ChatSessionID: m.ChatSessionID,
		SenderID:      m.SenderID,
		ContentType:   m.ContentType,
		Content:       m.Content,
		URL:           m.URL,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// decode reads a JSON body into v, writing a 400 on failure.
func (h *JSONHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, infrastructure.InvalidArgument("Malformed request body: %v", err))
		return false
	}
	return true
}

// caller returns the authenticated user ID, writing a 401 when absent.
func (h *JSONHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := UserID(r.Context())
	if !ok {
		h.writeError(w, infrastructure.Unauthenticated(infrastructure.ErrMissingToken))
	}
	return userID, ok
}

func (h *JSONHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		TaskID   string            `json:"taskId"`
		TaskType sessions.TaskType `json:"taskType"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), mux.Vars(r)["projectId"], req.TaskID, req.TaskType, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *JSONHandler) ListProjectSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.ListSessionsByProject(r.Context(), mux.Vars(r)["projectId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionList(list))
}

func (h *JSONHandler) ListMySessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	list, err := h.sessions.ListSessionsByParticipant(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionList(list))
}

func (h *JSONHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *JSONHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := h.sessions.DeleteSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !deleted {
		h.writeError(w, infrastructure.NotFound("ChatSession with ID %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status sessions.Status `json:"status"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	session, err := h.sessions.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.archiveOnClose && session.IsClosed() {
		if moved, err := h.messages.ArchiveSession(r.Context(), id); err != nil {
			h.logger.WarnContext(r.Context(), "archive on close failed", "session_id", id, "error", err)
		} else {
			h.logger.InfoContext(r.Context(), "archived on close", "session_id", id, "messages_moved", moved)
		}
	}
	h.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *JSONHandler) UpdateTaskType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskType sessions.TaskType `json:"taskType"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.sessions.UpdateTaskType(r.Context(), mux.Vars(r)["id"], req.TaskType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *JSONHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string                   `json:"userId"`
		Role   sessions.ParticipantRole `json:"role"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.sessions.AddParticipant(r.Context(), mux.Vars(r)["id"], req.UserID, req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *JSONHandler) ChangeParticipantRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role sessions.ParticipantRole `json:"role"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	session, err := h.sessions.ChangeParticipantRole(r.Context(), vars["id"], vars["userId"], req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *JSONHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	session, err := h.sessions.RemoveParticipant(r.Context(), vars["id"], vars["userId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *JSONHandler) ResolveParticipantRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role, err := h.sessions.ResolveParticipantRole(r.Context(), vars["id"], vars["userId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]sessions.ParticipantRole{"role": role})
}

func (h *JSONHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ContentType messaging.ContentType `json:"contentType"`
		Content     string                `json:"content"`
		URL         string                `json:"url"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	payload := req.Content
	if req.ContentType == messaging.ContentTypeFile {
		payload = req.URL
	}

	message, err := h.messages.SendMessage(r.Context(), mux.Vars(r)["id"], userID, req.ContentType, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func (h *JSONHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	list, err := h.messages.ListMessages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]messageResponse, len(list))
	for i, m := range list {
		out[i] = toMessageResponse(m)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ExportLog serves the transcript as JSON, or as an XLSX workbook when
// format=xlsx.
func (h *JSONHandler) ExportLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := h.messages.ExportLog(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := doc.RenderJSON(w); err != nil {
			h.logger.ErrorContext(r.Context(), "export render failed", "session_id", id, "error", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="chat-`+id+`.xlsx"`)
		if err := doc.RenderWorkbook(w); err != nil {
			h.logger.ErrorContext(r.Context(), "export render failed", "session_id", id, "error", err)
		}
	default:
		h.writeError(w, infrastructure.InvalidArgument("Unknown export format %s", format))
	}
}

func (h *JSONHandler) ArchiveSession(w http.ResponseWriter, r *http.Request) {
	moved, err := h.messages.ArchiveSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"moved": moved})
}

func (h *JSONHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	message, err := h.messages.GetMessage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMessageResponse(message))
}

func (h *JSONHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.DeleteMessage(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JSONHandler) UpdateTextMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	message, err := h.messages.UpdateTextMessage(r.Context(), mux.Vars(r)["id"], req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMessageResponse(message))
}

func (h *JSONHandler) UpdateFileURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	message, err := h.messages.UpdateFileURL(r.Context(), mux.Vars(r)["id"], req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMessageResponse(message))
}
