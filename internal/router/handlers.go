package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
)

// 內建 action
const (
	ActionListRooms   = "LIST_ROOMS"
	ActionCreateRoom  = "CREATE_ROOM"
	ActionJoinRoom    = "JOIN_ROOM"
	ActionLeaveRoom   = "LEAVE_ROOM"
	ActionSetNick     = "SET_NICK"
	ActionSendMessage = "SEND_MESSAGE"
)

// MaxNickLength 暱稱最大字元數
const MaxNickLength = 32

// RoomSummary LIST_ROOMS 中的單一房間
type RoomSummary struct {
	ID    string `json:"id"`
	Users int    `json:"users"`
}

// Member JOIN_ROOM 中的單一成員
type Member struct {
	ID   string `json:"id"`
	Nick string `json:"nick"`
}

// ChatEvent SEND_MESSAGE 廣播給房間成員的訊框
type ChatEvent struct {
	Event string   `json:"event"`
	Data  ChatData `json:"data"`
}

// ChatData 聊天內容
type ChatData struct {
	From string `json:"from"`
	Nick string `json:"nick"`
	Text string `json:"text"`
}

// InstallDefaults 以 SetDefault 安裝內建 handler
//
// 使用者先以 On 註冊同名 action 時，內建版本不會覆蓋它。
func InstallDefaults(r *Router, m *lobby.Manager) *Router {
	h := &builtins{manager: m}
	return r.
		SetDefault(ActionListRooms, h.listRooms).
		SetDefault(ActionCreateRoom, h.createRoom).
		SetDefault(ActionJoinRoom, h.joinRoom).
		SetDefault(ActionLeaveRoom, h.leaveRoom).
		SetDefault(ActionSetNick, h.setNick).
		SetDefault(ActionSendMessage, h.sendMessage)
}

type builtins struct {
	manager *lobby.Manager
}

// listRooms 列出所有房間及人數
func (h *builtins) listRooms(_ *lobby.Session, _ *lobby.Room, _ map[string]any) (any, error) {
	rooms := h.manager.ListRooms()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, RoomSummary{ID: room.ID, Users: room.Len()})
	}
	return map[string]any{"rooms": summaries}, nil
}

// createRoom 建立房間並把使用者移入
func (h *builtins) createRoom(s *lobby.Session, room *lobby.Room, _ map[string]any) (any, error) {
	if room != nil {
		return nil, lobby.ErrAlreadyInRoom
	}

	created := h.manager.CreateRoomFor(s)
	return map[string]any{"roomId": created.ID}, nil
}

// joinRoom 加入既有房間
func (h *builtins) joinRoom(s *lobby.Session, room *lobby.Room, payload map[string]any) (any, error) {
	if room != nil {
		return nil, lobby.ErrAlreadyInRoom
	}

	roomID, ok := payload["roomId"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: roomId is required", ErrInvalidPayload)
	}

	joined, err := h.manager.JoinRoom(s, roomID)
	if err != nil {
		return nil, err
	}

	members := joined.List()
	users := make([]Member, 0, len(members))
	for _, m := range members {
		users = append(users, Member{ID: m.ID(), Nick: m.Nick()})
	}
	return map[string]any{"roomId": joined.ID, "users": users}, nil
}

// leaveRoom 離開目前房間
func (h *builtins) leaveRoom(s *lobby.Session, room *lobby.Room, _ map[string]any) (any, error) {
	if room == nil {
		return nil, lobby.ErrNotInRoom
	}

	h.manager.LeaveRoom(s, room)
	return map[string]any{"success": true}, nil
}

// setNick 設定暱稱
func (h *builtins) setNick(s *lobby.Session, _ *lobby.Room, payload map[string]any) (any, error) {
	nick, ok := payload["nick"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: nick is required", ErrInvalidPayload)
	}

	nick = strings.TrimSpace(nick)
	if utf8.RuneCountInString(nick) > MaxNickLength {
		return nil, fmt.Errorf("%w: nick is longer than %d characters", ErrInvalidPayload, MaxNickLength)
	}

	s.SetNick(nick)
	return map[string]any{"id": s.ID(), "nick": nick}, nil
}

// sendMessage 廣播聊天訊息給房間所有成員
func (h *builtins) sendMessage(s *lobby.Session, room *lobby.Room, payload map[string]any) (any, error) {
	if room == nil {
		return nil, lobby.ErrNotInRoom
	}

	text, ok := payload["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidPayload)
	}

	frame, err := json.Marshal(ChatEvent{
		Event: "message",
		Data:  ChatData{From: s.ID(), Nick: s.Nick(), Text: text},
	})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	result := room.Broadcast(frame)
	return map[string]any{"delivered": result.Delivered}, nil
}
