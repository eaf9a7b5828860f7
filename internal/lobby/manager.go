package lobby

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Manager 大廳與房間的唯一狀態來源
//
// 系統設計考量：
//
//  1. 二選一不變式：
//     每個已建立的 Session 必定且只會出現在「大廳」或「某一個房間」其中之一。
//     只有 Manager 的方法會在兩者之間移動 Session。
//
//  2. 並發控制（單一寫鎖）：
//     lobby 與 rooms 是共享的可變集合，沒有逐項加鎖。
//     所有變更（建立、加入、離開）持有同一把寫鎖直到完成；
//     列表快照持讀鎖並複製 slice，不會觀察到變更進行到一半的狀態。
//     變更過程中沒有任何 I/O，鎖持有時間極短。
//
//  3. 線性掃描：
//     Resolve 先掃大廳再依建立順序掃每個房間。
//     單一行程、中小規模下足夠；先查大廳確保結果不會模稜兩可。
//
//  4. 鎖順序：Manager → Room → Session，Room 與 Session 不會回呼 Manager。
type Manager struct {
	lobby     []*Session
	rooms     map[string]*Room // roomID -> Room
	roomOrder []string         // 建立順序
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewManager 創建管理器
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// CreateSession 建立新 Session 並放入大廳
//
// 不檢查是否已有相同 connectionID 的 Session；連線處理應使用 Connect。
func (m *Manager) CreateSession(t Transport, connectionID string) *Session {
	s := NewSession(t, connectionID)

	m.mu.Lock()
	m.lobby = append(m.lobby, s)
	lobbySize := len(m.lobby)
	m.mu.Unlock()

	m.logger.Info("使用者已建立",
		"session_id", s.ID(),
		"connection_id", connectionID,
		"lobby_size", lobbySize)

	return s
}

// Resolve 依 connectionID 找出 Session 及其所在房間
//
// 在大廳時 room 為 nil；找不到時返回 ErrNotFound。
func (m *Manager) Resolve(connectionID string) (*Session, *Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, room, ok := m.resolveLocked(connectionID); ok {
		return s, room, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, connectionID)
}

// Connect 依 connectionID 重連既有 Session，或在大廳建立新的 Session
//
// 查找與建立在同一把寫鎖內完成，同一個 connectionID 同時連線也只會產生一個 Session。
// 既有 Session 的舊連線尚未關閉時返回 ErrAlreadyConnected；created 表示是否為新建立。
func (m *Manager) Connect(t Transport, connectionID string) (s *Session, room *Room, created bool, err error) {
	m.mu.Lock()
	s, room, found := m.resolveLocked(connectionID)
	if found {
		err = s.Reconnect(t)
		m.mu.Unlock()
		return s, room, false, err
	}

	s = NewSession(t, connectionID)
	m.lobby = append(m.lobby, s)
	lobbySize := len(m.lobby)
	m.mu.Unlock()

	m.logger.Info("使用者已建立",
		"session_id", s.ID(),
		"connection_id", connectionID,
		"lobby_size", lobbySize)

	return s, nil, true, nil
}

// Locate 返回 Session 目前所在的房間（在大廳時為 nil）
func (m *Manager) Locate(s *Session) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lobbyIndex(s) >= 0 {
		return nil, nil
	}
	for _, id := range m.roomOrder {
		if room := m.rooms[id]; room.Has(s) {
			return room, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, s.ID())
}

// CreateRoom 建立空房間並註冊
func (m *Manager) CreateRoom() *Room {
	room := NewRoom()

	m.mu.Lock()
	m.rooms[room.ID] = room
	m.roomOrder = append(m.roomOrder, room.ID)
	m.mu.Unlock()

	m.logger.Info("房間已創建", "room_id", room.ID)

	return room
}

// CreateRoomFor 建立房間並把 Session 從大廳移入
//
// 註冊與加入在同一把寫鎖內完成，其他連線不會看到沒有成員的新房間。
func (m *Manager) CreateRoomFor(s *Session) *Room {
	room := NewRoom()

	m.mu.Lock()
	m.rooms[room.ID] = room
	m.roomOrder = append(m.roomOrder, room.ID)
	m.removeFromLobbyLocked(s)
	room.Add(s)
	m.mu.Unlock()

	m.logger.Info("房間已創建",
		"room_id", room.ID,
		"session_id", s.ID())

	return room
}

// GetRoom 獲取房間
func (m *Manager) GetRoom(roomID string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[roomID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return room, nil
}

// RemoveRoom 移除房間，不存在時不做任何事
func (m *Manager) RemoveRoom(roomID string) {
	m.mu.Lock()
	removed := m.removeRoomLocked(roomID)
	m.mu.Unlock()

	if removed {
		m.logger.Info("房間已移除", "room_id", roomID)
	}
}

// JoinRoom 將 Session 從大廳移入房間
//
// 呼叫端必須先確認 Session 不在任何房間中，這裡不再重複檢查。
func (m *Manager) JoinRoom(s *Session, roomID string) (*Room, error) {
	m.mu.Lock()
	room, exists := m.rooms[roomID]
	if !exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	m.removeFromLobbyLocked(s)
	room.Add(s)
	members := room.Len()
	m.mu.Unlock()

	m.logger.Info("使用者加入房間",
		"room_id", roomID,
		"session_id", s.ID(),
		"members", members)

	return room, nil
}

// LeaveRoom 將 Session 從房間移回大廳，房間清空時自動移除
func (m *Manager) LeaveRoom(s *Session, room *Room) {
	m.mu.Lock()
	room.Remove(s)
	if m.lobbyIndex(s) < 0 {
		m.lobby = append(m.lobby, s)
	}

	empty := room.Len() == 0
	if empty {
		m.removeRoomLocked(room.ID)
	}
	m.mu.Unlock()

	m.logger.Info("使用者離開房間",
		"room_id", room.ID,
		"session_id", s.ID())
	if empty {
		m.logger.Info("房間已移除", "room_id", room.ID, "reason", "empty")
	}
}

// RemoveFromLobby 依身份從大廳移除，不存在時不做任何事
func (m *Manager) RemoveFromLobby(s *Session) {
	m.mu.Lock()
	m.removeFromLobbyLocked(s)
	m.mu.Unlock()
}

// ListRooms 返回房間快照（依建立順序）
func (m *Manager) ListRooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*Room, 0, len(m.roomOrder))
	for _, id := range m.roomOrder {
		rooms = append(rooms, m.rooms[id])
	}
	return rooms
}

// ListLobbySessions 返回大廳 Session 快照（依進入大廳的順序）
func (m *Manager) ListLobbySessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.lobby)
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inRooms := 0
	for _, room := range m.rooms {
		inRooms += room.Len()
	}

	return map[string]any{
		"total_rooms":    len(m.rooms),
		"lobby_sessions": len(m.lobby),
		"room_sessions":  inRooms,
		"total_sessions": len(m.lobby) + inRooms,
	}
}

// removeRoomLocked 移除房間（需要持有寫鎖）
func (m *Manager) removeRoomLocked(roomID string) bool {
	if _, exists := m.rooms[roomID]; !exists {
		return false
	}

	delete(m.rooms, roomID)
	if i := slices.Index(m.roomOrder, roomID); i >= 0 {
		m.roomOrder = slices.Delete(m.roomOrder, i, i+1)
	}
	return true
}

// removeFromLobbyLocked 從大廳移除（需要持有寫鎖）
func (m *Manager) removeFromLobbyLocked(s *Session) {
	if i := m.lobbyIndex(s); i >= 0 {
		m.lobby = slices.Delete(m.lobby, i, i+1)
	}
}

// resolveLocked 依 connectionID 查找（需要持有讀鎖或寫鎖）
func (m *Manager) resolveLocked(connectionID string) (*Session, *Room, bool) {
	for _, s := range m.lobby {
		if s.ConnectionID() == connectionID {
			return s, nil, true
		}
	}

	for _, id := range m.roomOrder {
		room := m.rooms[id]
		for _, s := range room.List() {
			if s.ConnectionID() == connectionID {
				return s, room, true
			}
		}
	}
	return nil, nil, false
}

func (m *Manager) lobbyIndex(s *Session) int {
	return slices.IndexFunc(m.lobby, func(l *Session) bool {
		return l.ID() == s.ID()
	})
}
