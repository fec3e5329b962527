package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/isqad/webinar-sfu/internal/engine"
	"github.com/isqad/webinar-sfu/internal/recording"
	"github.com/isqad/webinar-sfu/internal/rtc"
)

type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("encode response")
	}
}

func writeSuccess(w http.ResponseWriter, payload envelope) {
	body := envelope{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError maps domain error kinds to HTTP statuses; nothing else
// about the error leaks past the envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, rtc.ErrRoomNotFound),
		errors.Is(err, rtc.ErrPeerNotFound),
		errors.Is(err, rtc.ErrTransportNotFound),
		errors.Is(err, rtc.ErrProducerNotFound),
		errors.Is(err, rtc.ErrConsumerNotFound),
		errors.Is(err, recording.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rtc.ErrRoomExists):
		status = http.StatusConflict
	case errors.Is(err, rtc.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, rtc.ErrCapabilityMismatch), errors.Is(err, rtc.ErrRoomFull):
		status = http.StatusUnprocessableEntity
	}

	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		status = http.StatusBadGateway
	}

	writeJSON(w, status, envelope{"success": false, "error": err.Error()})
}

type createRoomRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (app *App) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	req := &createRoomRequest{}
	if r.Body != nil {
		// the body is optional, a bare POST creates an unnamed room
		_ = json.NewDecoder(r.Body).Decode(req)
	}

	roomID := "room_" + uuid.NewString()
	room, err := app.Registry.CreateRoom(roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, envelope{
		"roomId": room.ID,
		"name":   req.Name,
	})
}

func (app *App) routerCapabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	room, err := app.Registry.FindRoom(roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, envelope{"rtpCapabilities": room.RouterRtpCapabilities()})
}

func (app *App) roomStatsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	stats, err := app.Registry.Stats(roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, envelope{"stats": stats})
}

func (app *App) deleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	if err := app.Registry.DeleteRoom(r.Context(), roomID); err != nil {
		writeError(w, err)
		return
	}

	if app.Recordings != nil {
		app.Recordings.StopAllForRoom(r.Context(), roomID)
	}
	if app.Chat != nil {
		app.Chat.RoomClosed(roomID)
	}

	writeSuccess(w, envelope{"message": "room deleted"})
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := app.Pool.Status()

	httpStatus := http.StatusOK
	if !status.Available {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, envelope{"success": status.Available, "status": status})
}

func (app *App) startRecordingHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	if _, err := app.Registry.FindRoom(roomID); err != nil {
		writeError(w, err)
		return
	}

	session, err := app.Recordings.Start(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, envelope{"recording": session})
}

func (app *App) stopRecordingHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	session, err := app.Recordings.Stop(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, envelope{"recording": session})
}

func (app *App) listRecordingsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	sessions, err := app.Recordings.ForRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, envelope{"recordings": sessions})
}
