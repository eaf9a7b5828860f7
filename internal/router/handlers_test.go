package router_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby/lobbytest"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setup 建立含內建 handler 的 Router
func setup() (*router.Router, *lobby.Manager) {
	m := lobby.NewManager(testLogger())
	return router.InstallDefaults(router.New(), m), m
}

// dispatch 依 Manager 目前狀態解析所在房間後分派
func dispatch(t *testing.T, r *router.Router, m *lobby.Manager, s *lobby.Session, action string, payload map[string]any) (any, error) {
	t.Helper()
	_, room, err := m.Resolve(s.ConnectionID())
	require.NoError(t, err)
	return r.Dispatch(s, room, action, payload)
}

// TestInstallDefaults 測試內建 handler 安裝
func TestInstallDefaults(t *testing.T) {
	r, _ := setup()

	for _, action := range []string{
		router.ActionListRooms,
		router.ActionCreateRoom,
		router.ActionJoinRoom,
		router.ActionLeaveRoom,
		router.ActionSetNick,
		router.ActionSendMessage,
	} {
		assert.True(t, r.Has(action), action)
	}
	assert.NoError(t, r.Err())
}

// TestInstallDefaults_KeepsUserHandlers 使用者的 handler 優先
func TestInstallDefaults_KeepsUserHandlers(t *testing.T) {
	m := lobby.NewManager(testLogger())
	r := router.New().On(router.ActionListRooms, func(*lobby.Session, *lobby.Room, map[string]any) (any, error) {
		return map[string]any{"custom": true}, nil
	})
	router.InstallDefaults(r, m)

	s := m.CreateSession(lobbytest.NewTransport(), "conn-1")
	result, err := r.Dispatch(s, nil, router.ActionListRooms, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"custom": true}, result)
	assert.NoError(t, r.Err())
}

// TestHandler_ListRooms 測試 LIST_ROOMS
func TestHandler_ListRooms(t *testing.T) {
	t.Run("no rooms", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")

		result, err := dispatch(t, r, m, s, router.ActionListRooms, map[string]any{})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"rooms": []router.RoomSummary{}}, result)
	})

	t.Run("rooms with user counts", func(t *testing.T) {
		r, m := setup()
		s1 := m.CreateSession(lobbytest.NewTransport(), "conn-1")
		s2 := m.CreateSession(lobbytest.NewTransport(), "conn-2")
		s3 := m.CreateSession(lobbytest.NewTransport(), "conn-3")
		room1 := m.CreateRoom()
		room2 := m.CreateRoom()
		_, err := m.JoinRoom(s1, room1.ID)
		require.NoError(t, err)
		_, err = m.JoinRoom(s2, room1.ID)
		require.NoError(t, err)
		_, err = m.JoinRoom(s3, room2.ID)
		require.NoError(t, err)

		result, err := dispatch(t, r, m, s1, router.ActionListRooms, map[string]any{})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"rooms": []router.RoomSummary{
			{ID: room1.ID, Users: 2},
			{ID: room2.ID, Users: 1},
		}}, result)
	})
}

// TestHandler_CreateRoom 測試 CREATE_ROOM
func TestHandler_CreateRoom(t *testing.T) {
	t.Run("create room and move user into it", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")

		result, err := dispatch(t, r, m, s, router.ActionCreateRoom, map[string]any{})

		require.NoError(t, err)
		roomID := result.(map[string]any)["roomId"].(string)
		require.NotEmpty(t, roomID)

		room, err := m.GetRoom(roomID)
		require.NoError(t, err)
		assert.Equal(t, []*lobby.Session{s}, room.List())
		assert.NotContains(t, m.ListLobbySessions(), s)
	})

	t.Run("already in a room", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")
		_, err := dispatch(t, r, m, s, router.ActionCreateRoom, map[string]any{})
		require.NoError(t, err)

		_, err = dispatch(t, r, m, s, router.ActionCreateRoom, map[string]any{})

		require.ErrorIs(t, err, lobby.ErrAlreadyInRoom)
		assert.Len(t, m.ListRooms(), 1)
	})
}

// TestHandler_CreateRoom_Concurrent 其他連線同時加入、離開新房間時，CREATE_ROOM 仍然成功
func TestHandler_CreateRoom_Concurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	r, m := setup()
	creator := m.CreateSession(lobbytest.NewTransport(), "creator")
	other := m.CreateSession(lobbytest.NewTransport(), "other")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, room := range m.ListRooms() {
				if room.Len() > 0 {
					continue
				}
				if joined, err := m.JoinRoom(other, room.ID); err == nil {
					m.LeaveRoom(other, joined)
				}
			}
		}
	}()

	failures := 0
	for range 2000 {
		if _, err := dispatch(t, r, m, creator, router.ActionCreateRoom, map[string]any{}); err != nil {
			failures++
			continue
		}
		_, err := dispatch(t, r, m, creator, router.ActionLeaveRoom, map[string]any{})
		require.NoError(t, err)
	}
	close(stop)
	<-done

	assert.Zero(t, failures, "CREATE_ROOM 不應因其他連線的操作而失敗")
	assert.Empty(t, m.ListRooms())
	assert.Len(t, m.ListLobbySessions(), 2)
}

// TestHandler_JoinRoom 測試 JOIN_ROOM（情境 E）
func TestHandler_JoinRoom(t *testing.T) {
	tests := []struct {
		name     string
		payload  func(roomID string) map[string]any
		preJoin  bool
		validate func(t *testing.T, m *lobby.Manager, owner, joiner *lobby.Session, roomID string, result any, err error)
	}{
		{
			name:    "join existing room",
			payload: func(roomID string) map[string]any { return map[string]any{"roomId": roomID} },
			validate: func(t *testing.T, m *lobby.Manager, owner, joiner *lobby.Session, roomID string, result any, err error) {
				require.NoError(t, err)
				assert.Equal(t, map[string]any{
					"roomId": roomID,
					"users": []router.Member{
						{ID: owner.ID(), Nick: "owner"},
						{ID: joiner.ID(), Nick: ""},
					},
				}, result)
				assert.NotContains(t, m.ListLobbySessions(), joiner)
			},
		},
		{
			name:    "missing roomId",
			payload: func(string) map[string]any { return map[string]any{} },
			validate: func(t *testing.T, m *lobby.Manager, owner, joiner *lobby.Session, roomID string, result any, err error) {
				require.ErrorIs(t, err, router.ErrInvalidPayload)
				assert.Contains(t, err.Error(), "roomId is required")
				assert.Contains(t, m.ListLobbySessions(), joiner)
			},
		},
		{
			name:    "roomId is not a string",
			payload: func(string) map[string]any { return map[string]any{"roomId": float64(42)} },
			validate: func(t *testing.T, m *lobby.Manager, owner, joiner *lobby.Session, roomID string, result any, err error) {
				require.ErrorIs(t, err, router.ErrInvalidPayload)
			},
		},
		{
			name:    "room does not exist",
			payload: func(string) map[string]any { return map[string]any{"roomId": "missing"} },
			validate: func(t *testing.T, m *lobby.Manager, owner, joiner *lobby.Session, roomID string, result any, err error) {
				require.ErrorIs(t, err, lobby.ErrRoomNotFound)
				assert.Contains(t, m.ListLobbySessions(), joiner)
			},
		},
		{
			name:    "already in a room",
			payload: func(roomID string) map[string]any { return map[string]any{"roomId": roomID} },
			preJoin: true,
			validate: func(t *testing.T, m *lobby.Manager, owner, joiner *lobby.Session, roomID string, result any, err error) {
				require.ErrorIs(t, err, lobby.ErrAlreadyInRoom)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := setup()
			owner := m.CreateSession(lobbytest.NewTransport(), "owner")
			owner.SetNick("owner")
			joiner := m.CreateSession(lobbytest.NewTransport(), "joiner")
			room := m.CreateRoom()
			_, err := m.JoinRoom(owner, room.ID)
			require.NoError(t, err)
			if tt.preJoin {
				other := m.CreateRoom()
				_, err := m.JoinRoom(joiner, other.ID)
				require.NoError(t, err)
			}

			result, err := dispatch(t, r, m, joiner, router.ActionJoinRoom, tt.payload(room.ID))

			tt.validate(t, m, owner, joiner, room.ID, result, err)
		})
	}
}

// TestHandler_LeaveRoom 測試 LEAVE_ROOM
func TestHandler_LeaveRoom(t *testing.T) {
	t.Run("leave and remove empty room", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")
		_, err := dispatch(t, r, m, s, router.ActionCreateRoom, map[string]any{})
		require.NoError(t, err)

		result, err := dispatch(t, r, m, s, router.ActionLeaveRoom, map[string]any{})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"success": true}, result)
		assert.Contains(t, m.ListLobbySessions(), s)
		assert.Empty(t, m.ListRooms())
	})

	t.Run("not in a room", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")

		_, err := dispatch(t, r, m, s, router.ActionLeaveRoom, map[string]any{})

		require.ErrorIs(t, err, lobby.ErrNotInRoom)
	})
}

// TestHandler_SetNick 測試 SET_NICK
func TestHandler_SetNick(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]any
		wantNick string
		wantErr  error
	}{
		{name: "set nick", payload: map[string]any{"nick": "koopa"}, wantNick: "koopa"},
		{name: "trim spaces", payload: map[string]any{"nick": "  koopa  "}, wantNick: "koopa"},
		{name: "clear nick", payload: map[string]any{"nick": ""}, wantNick: ""},
		{name: "missing nick", payload: map[string]any{}, wantErr: router.ErrInvalidPayload},
		{name: "nick too long", payload: map[string]any{"nick": strings.Repeat("長", router.MaxNickLength+1)}, wantErr: router.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := setup()
			s := m.CreateSession(lobbytest.NewTransport(), "conn-1")

			result, err := dispatch(t, r, m, s, router.ActionSetNick, tt.payload)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, s.Nick())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"id": s.ID(), "nick": tt.wantNick}, result)
			assert.Equal(t, tt.wantNick, s.Nick())
		})
	}
}

// TestHandler_SendMessage 測試 SEND_MESSAGE
func TestHandler_SendMessage(t *testing.T) {
	t.Run("broadcast to every member", func(t *testing.T) {
		r, m := setup()
		t1, t2, t3 := lobbytest.NewTransport(), lobbytest.NewTransport(), lobbytest.NewTransport()
		s1 := m.CreateSession(t1, "conn-1")
		s1.SetNick("koopa")
		s2 := m.CreateSession(t2, "conn-2")
		m.CreateSession(t3, "conn-3") // 大廳中的使用者不應收到
		room := m.CreateRoom()
		_, err := m.JoinRoom(s1, room.ID)
		require.NoError(t, err)
		_, err = m.JoinRoom(s2, room.ID)
		require.NoError(t, err)

		result, err := dispatch(t, r, m, s1, router.ActionSendMessage, map[string]any{"text": "hello"})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"delivered": 2}, result)

		var event router.ChatEvent
		require.NoError(t, json.Unmarshal(t2.Last(), &event))
		assert.Equal(t, "message", event.Event)
		assert.Equal(t, router.ChatData{From: s1.ID(), Nick: "koopa", Text: "hello"}, event.Data)
		assert.Len(t, t1.Sent(), 1)
		assert.Empty(t, t3.Sent())
	})

	t.Run("disconnected member is skipped", func(t *testing.T) {
		r, m := setup()
		t1, t2 := lobbytest.NewTransport(), lobbytest.NewTransport()
		s1 := m.CreateSession(t1, "conn-1")
		s2 := m.CreateSession(t2, "conn-2")
		room := m.CreateRoom()
		_, err := m.JoinRoom(s1, room.ID)
		require.NoError(t, err)
		_, err = m.JoinRoom(s2, room.ID)
		require.NoError(t, err)
		t2.FailSends()

		result, err := dispatch(t, r, m, s1, router.ActionSendMessage, map[string]any{"text": "hello"})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"delivered": 1}, result)
	})

	t.Run("not in a room", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")

		_, err := dispatch(t, r, m, s, router.ActionSendMessage, map[string]any{"text": "hello"})
		require.ErrorIs(t, err, lobby.ErrNotInRoom)
	})

	t.Run("empty text", func(t *testing.T) {
		r, m := setup()
		s := m.CreateSession(lobbytest.NewTransport(), "conn-1")
		_, err := dispatch(t, r, m, s, router.ActionCreateRoom, map[string]any{})
		require.NoError(t, err)

		_, err = dispatch(t, r, m, s, router.ActionSendMessage, map[string]any{"text": "   "})
		require.ErrorIs(t, err, router.ErrInvalidPayload)
	})
}
