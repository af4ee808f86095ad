package httpapi

import (
	"fmt"
	"net/http"

	"clinic-roomsync/internal/domain"
)

// listRooms 返回 store 状态；refresh=true 时先按查询条件重新拉取
func (h *handler) listRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if parseBool(q.Get("refresh"), false) {
		filters := domain.RoomFilters{
			Type:          domain.RoomType(q.Get("type")),
			Status:        domain.RoomStatus(q.Get("status")),
			AvailableOnly: parseBool(q.Get("available_only"), false),
		}
		if _, err := h.deps.Rooms.FetchRooms(r.Context(), filters); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, Ok(h.deps.Rooms.Snapshot()))
}

func (h *handler) listAvailableRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.deps.Rooms.Snapshot().AvailableRooms))
}

func (h *handler) roomStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.deps.Rooms.Statistics()))
}

func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	room, ok := h.deps.Rooms.RoomByID(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("room %s: %w", id, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, Ok(room))
}

func (h *handler) checkRoomAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.deps.Rooms.CheckRoomAvailability(r.Context(), idParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(availability))
}

func (h *handler) updateRoomStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.RoomStatus `json:"status"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	room, err := h.deps.Rooms.UpdateRoomStatus(r.Context(), idParam(r), body.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(room))
}

func (h *handler) scheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	room, err := h.deps.Rooms.ScheduleMaintenance(r.Context(), idParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(room))
}

func (h *handler) completeMaintenance(w http.ResponseWriter, r *http.Request) {
	room, err := h.deps.Rooms.CompleteMaintenance(r.Context(), idParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(room))
}
