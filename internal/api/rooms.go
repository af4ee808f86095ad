package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"clinic-roomsync/internal/domain"
)

func roomPath(id domain.ID) string {
	return "/rooms/" + id.String()
}

// ListRooms GET /rooms
func (c *Client) ListRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error) {
	query := map[string]string{}
	if filters.Type != "" {
		query["type"] = string(filters.Type)
	}
	if filters.Status != "" {
		query["status"] = string(filters.Status)
	}
	if filters.AvailableOnly {
		query["available_only"] = strconv.FormatBool(true)
	}

	var raw json.RawMessage
	if err := c.get(ctx, call{
		op:       "list_rooms",
		resource: "rooms",
		fallback: "Failed to fetch rooms",
		path:     "/rooms/",
		query:    query,
	}, &raw); err != nil {
		return nil, err
	}

	rooms := []domain.Room{}
	if err := decodeList(raw, "rooms", &rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom GET /rooms/{id}
func (c *Client) GetRoom(ctx context.Context, id domain.ID) (domain.Room, error) {
	var room domain.Room
	err := c.get(ctx, call{
		op:       "get_room",
		resource: "room " + id.String(),
		fallback: "Failed to fetch room",
		path:     roomPath(id),
	}, &room)
	return room, err
}

// CreateRoom POST /rooms
func (c *Client) CreateRoom(ctx context.Context, input domain.RoomInput) (domain.Room, error) {
	var room domain.Room
	err := c.send(ctx, call{
		op:       "create_room",
		resource: "room " + input.RoomNumber,
		fallback: "Failed to create room",
		method:   http.MethodPost,
		path:     "/rooms/",
		body:     input,
	}, &room)
	return room, err
}

// UpdateRoom PUT /rooms/{id}
func (c *Client) UpdateRoom(ctx context.Context, id domain.ID, input domain.RoomInput) (domain.Room, error) {
	var room domain.Room
	err := c.send(ctx, call{
		op:       "update_room",
		resource: "room " + id.String(),
		fallback: "Failed to update room",
		method:   http.MethodPut,
		path:     roomPath(id),
		body:     input,
	}, &room)
	return room, err
}

// UpdateRoomStatus PATCH /rooms/{id}/status
func (c *Client) UpdateRoomStatus(ctx context.Context, id domain.ID, status domain.RoomStatus) (domain.Room, error) {
	var room domain.Room
	err := c.send(ctx, call{
		op:       "update_room_status",
		resource: "room " + id.String(),
		fallback: "Failed to update room status",
		method:   http.MethodPatch,
		path:     roomPath(id) + "/status",
		body:     map[string]domain.RoomStatus{"status": status},
	}, &room)
	return room, err
}

// ListAvailableRooms GET /rooms/available/list
func (c *Client) ListAvailableRooms(ctx context.Context, roomType domain.RoomType) ([]domain.Room, error) {
	query := map[string]string{}
	if roomType != "" {
		query["type"] = string(roomType)
	}

	var raw json.RawMessage
	if err := c.get(ctx, call{
		op:       "list_available_rooms",
		resource: "rooms",
		fallback: "Failed to fetch available rooms",
		path:     "/rooms/available/list",
		query:    query,
	}, &raw); err != nil {
		return nil, err
	}

	rooms := []domain.Room{}
	if err := decodeList(raw, "rooms", &rooms); err != nil {
		return nil, fmt.Errorf("decode available rooms: %w", err)
	}
	return rooms, nil
}

// CheckRoomAvailability GET /rooms/{id}/available
func (c *Client) CheckRoomAvailability(ctx context.Context, id domain.ID) (domain.RoomAvailability, error) {
	var availability domain.RoomAvailability
	err := c.get(ctx, call{
		op:       "check_room_availability",
		resource: "room " + id.String(),
		fallback: "Failed to check room availability",
		path:     roomPath(id) + "/available",
	}, &availability)
	if err == nil && availability.RoomID.IsZero() {
		availability.RoomID = id
	}
	return availability, err
}
