package notification

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/platform/internal/shared/auth"
	"github.com/clinicore/platform/internal/shared/errors"
	"github.com/clinicore/platform/internal/shared/metrics"
	"github.com/clinicore/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the notification module
type Handler struct {
	dispatcher *Dispatcher
	engine     *Engine
	settings   *SettingsRepository
	events     *EventRepository
	pending    *PendingRepository
	msgLog     *MessageLogRepository
	senders    map[Channel]Sender
}

// NewHandler creates a new notification handler
func NewHandler(
	dispatcher *Dispatcher,
	engine *Engine,
	settings *SettingsRepository,
	events *EventRepository,
	pending *PendingRepository,
	msgLog *MessageLogRepository,
	senders map[Channel]Sender,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		engine:     engine,
		settings:   settings,
		events:     events,
		pending:    pending,
		msgLog:     msgLog,
		senders:    senders,
	}
}

// Routes registers the notification routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/dispatch", h.DispatchEvent)
	r.Get("/preview", h.PreviewEvent)
	r.Get("/variables", h.ListVariables)
	r.Post("/templates/validate", h.ValidateTemplate)

	r.Route("/pending", func(r chi.Router) {
		r.Get("/", h.ListPending)
		r.Post("/{pendingID}/approve", h.ApprovePending)
		r.Post("/{pendingID}/dismiss", h.DismissPending)
	})

	r.Get("/log", h.ListMessageLog)

	return r
}

// --- Request/Response types ---

type DispatchRequest struct {
	EventCode      EventCode       `json:"event_code"`
	ClinicID       types.ID        `json:"clinic_id,omitempty"`
	PatientID      *types.ID       `json:"patient_id,omitempty"`
	AppointmentID  *types.ID       `json:"appointment_id,omitempty"`
	PublicMetadata *PublicMetadata `json:"public_metadata,omitempty"`
	// Channels restricts dispatch to a subset; empty means every
	// channel enabled for the event
	Channels []Channel `json:"channels,omitempty"`
}

type ChannelOutcome struct {
	Channel    Channel   `json:"channel"`
	Status     string    `json:"status"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	PendingID  *types.ID `json:"pending_id,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type DispatchResponse struct {
	EventID  types.ID         `json:"event_id"`
	Outcomes []ChannelOutcome `json:"outcomes"`
}

type ValidateTemplateRequest struct {
	Body    string `json:"body"`
	Subject string `json:"subject,omitempty"`
}

// --- Handlers ---

// DispatchEvent persists an event and runs it through the dispatch
// pipeline on each requested channel. Channel outcomes are independent:
// one channel failing does not stop the other.
func (h *Handler) DispatchEvent(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if !req.EventCode.Valid() {
		writeError(w, errors.BadRequest("unknown event code"))
		return
	}

	clinicID := h.clinicID(r, req.ClinicID)
	if clinicID.IsZero() {
		writeError(w, errors.BadRequest("clinic ID required"))
		return
	}
	if req.PatientID == nil && req.PublicMetadata == nil {
		writeError(w, errors.BadRequest("patient ID or public metadata required"))
		return
	}

	event := &Event{
		ID:             types.NewID(),
		EventCode:      req.EventCode,
		ClinicID:       clinicID,
		PatientID:      req.PatientID,
		AppointmentID:  req.AppointmentID,
		PublicMetadata: req.PublicMetadata,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.events.Save(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}

	channels := req.Channels
	if len(channels) == 0 {
		enabled, err := h.settings.ListEnabled(r.Context(), clinicID, req.EventCode)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, s := range enabled {
			channels = append(channels, s.Channel)
		}
	}

	resp := DispatchResponse{EventID: event.ID}
	for _, ch := range channels {
		resp.Outcomes = append(resp.Outcomes, h.dispatchOne(r, event, ch))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dispatchOne(r *http.Request, event *Event, ch Channel) ChannelOutcome {
	result, derr := h.dispatcher.Dispatch(r.Context(), event, ch)
	if derr != nil {
		return ChannelOutcome{
			Channel:   ch,
			Status:    "failed",
			ErrorKind: derr.Kind,
			Error:     derr.Message,
		}
	}
	if result.Pending() {
		pendingID := result.PendingID
		return ChannelOutcome{Channel: ch, Status: "pending", PendingID: &pendingID}
	}
	return ChannelOutcome{Channel: ch, Status: "sent", DeliveryID: result.DeliveryID}
}

// PreviewEvent renders an event without sending. Query parameters:
// event_id, and optionally channel. Without a channel it previews the
// event on every supported channel and returns the list.
func (h *Handler) PreviewEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := types.ParseID(r.URL.Query().Get("event_id"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid event ID"))
		return
	}

	clinicID := h.clinicID(r, types.ID(""))
	if clinicID.IsZero() {
		event, err := h.events.FindByID(r.Context(), eventID)
		if err != nil {
			writeError(w, err)
			return
		}
		clinicID = event.ClinicID
	}

	if raw := r.URL.Query().Get("channel"); raw != "" {
		ch := Channel(raw)
		if ch != ChannelEmail && ch != ChannelWhatsApp {
			writeError(w, errors.BadRequest("channel must be email or whatsapp"))
			return
		}
		preview, derr := h.dispatcher.Preview(r.Context(), clinicID, eventID, ch)
		if derr != nil {
			writeDispatchError(w, derr)
			return
		}
		writeJSON(w, http.StatusOK, preview)
		return
	}

	var previews []*PreviewResult
	var firstErr *DispatchError
	for _, ch := range Channels() {
		preview, derr := h.dispatcher.Preview(r.Context(), clinicID, eventID, ch)
		if derr != nil {
			if firstErr == nil {
				firstErr = derr
			}
			continue
		}
		previews = append(previews, preview)
	}
	if len(previews) == 0 && firstErr != nil {
		writeDispatchError(w, firstErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  previews,
		"total": len(previews),
	})
}

// ListVariables returns the substitutable tokens templates may use
func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"variables": h.engine.KnownTokens(),
	})
}

// ValidateTemplate checks template text for unknown tokens
func (h *Handler) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var req ValidateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result := h.engine.Validate(req.Subject + "\n" + req.Body)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	clinicID := h.clinicID(r, types.ID(""))
	if clinicID.IsZero() {
		writeError(w, errors.BadRequest("clinic ID required"))
		return
	}

	messages, err := h.pending.ListPending(r.Context(), clinicID, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  messages,
		"total": len(messages),
	})
}

// ApprovePending delivers a queued message as-is and resolves it. The
// body that was rendered at queue time is what goes out; approval does
// not re-render.
func (h *Handler) ApprovePending(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pendingID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid pending message ID"))
		return
	}

	clinicID := h.clinicID(r, types.ID(""))
	if clinicID.IsZero() {
		writeError(w, errors.BadRequest("clinic ID required"))
		return
	}

	pm, err := h.pending.Get(r.Context(), clinicID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if pm.Status != PendingStatusPending {
		writeError(w, errors.Conflict("pending message already resolved"))
		return
	}

	sender, ok := h.senders[pm.Channel]
	if !ok {
		writeError(w, errors.BadRequest("no sender registered for channel "+string(pm.Channel)))
		return
	}

	providerID, derr := sender.Send(r.Context(), OutboundMessage{
		ClinicID:  pm.ClinicID,
		To:        pm.Recipient,
		Subject:   pm.Subject,
		Body:      pm.Body,
		EventCode: pm.EventCode,
		Context:   pm.Context,
	})
	if derr != nil {
		writeDispatchError(w, derr)
		return
	}

	entry := &MessageLogEntry{
		ID:                types.NewID(),
		ClinicID:          pm.ClinicID,
		PatientID:         pm.PatientID,
		AppointmentID:     pm.AppointmentID,
		EventCode:         pm.EventCode,
		Channel:           pm.Channel,
		TemplateName:      pm.TemplateName,
		ProviderMessageID: providerID,
		SentAt:            time.Now().UTC(),
	}
	if err := h.msgLog.Append(r.Context(), entry); err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordMessageLogged(string(pm.Channel), string(pm.EventCode))

	if err := h.pending.MarkSent(r.Context(), clinicID, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "sent",
		"delivery_id": providerID,
	})
}

func (h *Handler) DismissPending(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pendingID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid pending message ID"))
		return
	}

	clinicID := h.clinicID(r, types.ID(""))
	if clinicID.IsZero() {
		writeError(w, errors.BadRequest("clinic ID required"))
		return
	}

	if err := h.pending.Dismiss(r.Context(), clinicID, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (h *Handler) ListMessageLog(w http.ResponseWriter, r *http.Request) {
	clinicID := h.clinicID(r, types.ID(""))
	if clinicID.IsZero() {
		writeError(w, errors.BadRequest("clinic ID required"))
		return
	}

	entries, err := h.msgLog.List(r.Context(), clinicID, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

// --- Helpers ---

// clinicID resolves the tenant scope, preferring the authenticated
// user's clinic over anything the request carries.
func (h *Handler) clinicID(r *http.Request, fallback types.ID) types.ID {
	if user := auth.GetUser(r.Context()); user != nil && !user.ClinicID.IsZero() {
		return user.ClinicID
	}
	if !fallback.IsZero() {
		return fallback
	}
	if q := r.URL.Query().Get("clinic_id"); q != "" {
		if id, err := types.ParseID(q); err == nil {
			return id
		}
	}
	return types.ID("")
}

func queryLimit(r *http.Request) int {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		for i := 0; i < len(q); i++ {
			if q[i] < '0' || q[i] > '9' {
				return 0
			}
			limit = limit*10 + int(q[i]-'0')
		}
	}
	return limit
}

var dispatchErrorStatus = map[ErrorKind]int{
	KindConfiguration:           http.StatusUnprocessableEntity,
	KindIntegrationNotConnected: http.StatusUnprocessableEntity,
	KindTemplateNotFound:        http.StatusUnprocessableEntity,
	KindMissingRecipientContact: http.StatusUnprocessableEntity,
	KindRender:                  http.StatusUnprocessableEntity,
	KindSendFailure:             http.StatusBadGateway,
}

func writeDispatchError(w http.ResponseWriter, derr *DispatchError) {
	status, ok := dispatchErrorStatus[derr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": derr.Message,
		"kind":  string(derr.Kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
