// Package models defines the domain and API types shared across the backend.
package models

// Track describes the song behind a playlist entry: either a reference into
// an external catalogue (External true, only ID set) or a literal tuple from
// the submitter's own library.
type Track struct {
	ID       string `json:"id"`
	External bool   `json:"external"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Length   int64  `json:"length,omitempty"`
}

// PlaylistEntry is one song in a room's queue. UID is allocated once per room
// and is the only stable handle for removal; list position is not.
type PlaylistEntry struct {
	UID   int64  `json:"uid"`
	Owner string `json:"owner"` // opaque user token of the submitter
	Track
}

// PublicUser is the sanitised view of a user shared with other room members.
type PublicUser struct {
	ID   string `json:"id"` // opaque user token
	Name string `json:"name"`
}

// Users API

type CreateUserRequest struct {
	Name string `json:"name"`
}

type CreateUserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SuggestedNameResponse struct {
	Name string `json:"name"`
}

// Rooms API

type CreateRoomResponse struct {
	Room string `json:"room"`
}

type JoinRoomResponse struct {
	ID       string          `json:"id"`
	Owner    string          `json:"owner"`
	Playlist []PlaylistEntry `json:"playlist"`
	Users    []PublicUser    `json:"users"`
}

type PlaylistResponse struct {
	Room     string          `json:"room"`
	Playlist []PlaylistEntry `json:"playlist"`
}

type AddSongRequest struct {
	Song Track `json:"song"`
}

type AddSongResponse struct {
	Room string        `json:"room"`
	Song PlaylistEntry `json:"song"`
}

type RemoveSongRequest struct {
	SongUID int64 `json:"songUid"`
}

type NextSongResponse struct {
	Room    string `json:"room"`
	SongUID int64  `json:"songUid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Event payloads pushed to room members.

type UserJoinedEvent struct {
	User PublicUser `json:"user"`
}

type UserLeftEvent struct {
	User string `json:"user"`
}

type UserBlockedEvent struct {
	User string `json:"user"`
}

type RoomClosedEvent struct {
	Expected bool `json:"expected"`
}

type SongAddedEvent struct {
	Song PlaylistEntry `json:"song"`
}

type SongRemovedEvent struct {
	SongUID int64 `json:"songUid"`
}
