package wolf

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Official bot identities on the platform. The router matches inbound private
// messages against these sender ids.
const (
	DefaultRaceBotID  = "80277459"
	DefaultGuessBotID = "79216477"
	DefaultFishBotID  = "76305584"
)

// RoomURLTemplate turns a bare room id into a canonical room reference.
const RoomURLTemplate = "https://wolf.live/g/%s"

// Session is the platform credential handed out by a successful login.
type Session struct {
	Token  string `json:"auth_token"`
	UserID string `json:"user_id"`
}

// RoomJoin reports a successful room connection.
type RoomJoin struct {
	RoomID   string    `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// PrivateMessage is an inbound direct message. Immutable after receipt except
// for the read flag.
type PrivateMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
	RoomLink   string    `json:"room_link,omitempty"`
}

// Gateway is the platform capability the automation core consumes. All calls
// are request/response; no state is retained on the client side.
type Gateway interface {
	Login(ctx context.Context, username, secret string) (*Session, error)
	Logout(ctx context.Context, token string) error
	ConnectToRoom(ctx context.Context, token, roomRef string) (*RoomJoin, error)
	SendMessage(ctx context.Context, token, roomRef, text string) error
	SendCommand(ctx context.Context, token, roomRef, command string) error
	PrivateMessages(ctx context.Context, token string) ([]PrivateMessage, error)
	MarkMessageRead(ctx context.Context, token, messageID string) error
}

// PlatformError is a failure the platform itself reported (success=false in
// the response envelope), as opposed to a transport-level error.
type PlatformError struct {
	Message string
}

func (e *PlatformError) Error() string {
	if e == nil || e.Message == "" {
		return "platform error"
	}
	return fmt.Sprintf("platform: %s", e.Message)
}

// envelope is the uniform response wrapper every gateway endpoint returns.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type roomJoinRequest struct {
	Room string `json:"room"`
}

type sendRequest struct {
	Room string `json:"room"`
	Text string `json:"text"`
}
