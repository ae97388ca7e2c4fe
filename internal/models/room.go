package models

import "time"

// Room is a short-lived rendezvous namespace identified by a shareable code.
// A room is destroyed logically by flipping IsActive rather than deleting the
// row, so historical signaling rows stay attributable.
type Room struct {
	Code      string    `json:"code"`
	HostID    string    `json:"host_id"`
	HostName  string    `json:"host_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

// CreateRoomResponse is the response for creating a room.
type CreateRoomResponse struct {
	Code string `json:"code"`
}

// JoinRoomRequest is the request body for joining a room by code.
type JoinRoomRequest struct {
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
}
