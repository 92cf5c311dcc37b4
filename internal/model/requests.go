package model

// TransferRequest starts a warm transfer between two agents.
type TransferRequest struct {
	RoomName   string `json:"room_name"`
	FromAgent  string `json:"from_agent"`
	ToAgent    string `json:"to_agent"`
	Transcript string `json:"transcript,omitempty"`
}

// TransferResponse carries the destination room, the credentials for
// every party, and the generated handoff summary.
type TransferResponse struct {
	RoomName       string `json:"room_name"`
	FromAgentToken string `json:"from_agent_token"`
	ToAgentToken   string `json:"to_agent_token"`
	CallerToken    string `json:"caller_token"`
	Summary        string `json:"summary"`
}

// PhoneTransferRequest hands the call off to an agent reachable only
// by phone.
type PhoneTransferRequest struct {
	RoomName       string `json:"room_name"`
	PhoneNumber    string `json:"phone_number"`
	CallerIdentity string `json:"caller_identity"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// PhoneTransferResponse reports the placed call.
type PhoneTransferResponse struct {
	CallID   string `json:"call_id"`
	ToNumber string `json:"to_number"`
	Status   string `json:"status"`
}

// CreateRoomRequest creates or names a room. An empty RoomName asks
// the server to generate one.
type CreateRoomRequest struct {
	RoomName string `json:"room_name,omitempty"`
}

// CreateRoomResponse returns the effective room name.
type CreateRoomResponse struct {
	RoomName string `json:"room_name"`
	Created  bool   `json:"created"`
}

// JoinTokenRequest mints an access token for one identity in a room.
type JoinTokenRequest struct {
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
	Role     string `json:"role,omitempty"`
}

// JoinTokenResponse carries the signed token.
type JoinTokenResponse struct {
	RoomName  string `json:"room_name"`
	Identity  string `json:"identity"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// MembershipRequest asks whether an identity occupies a room.
type MembershipRequest struct {
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// MembershipResponse answers a membership query.
type MembershipResponse struct {
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
	IsMember bool   `json:"is_member"`
}

// SummaryResponse returns the persisted handoff summary for a room.
type SummaryResponse struct {
	RoomName string `json:"room_name"`
	Summary  string `json:"summary"`
}
