package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   如何讓一組使用者共享廣播通道，同時不讓單一慢速連線拖累整個房間？
//
// 核心挑戰：
//   1. 成員順序：列表必須維持加入順序（JOIN_ROOM 回傳的 users 依此排列）
//   2. 並發讀寫：廣播（讀）頻繁，加入/離開（寫）較少
//   3. 錯誤隔離：某個成員發送失敗不能中斷其他成員的投遞
//
// 設計方案：
//   ✅ slice 保存成員 - 保留加入順序，規模小時線性掃描足夠
//   ✅ RWMutex - 廣播只持讀鎖並先複製快照
//   ✅ 非阻塞發送 - Transport.Send 由傳輸層保證不阻塞

// Room 共享廣播通道的使用者集合
//
// 成員變動只能經由 Manager（JoinRoom / LeaveRoom）觸發，
// handler 不應直接呼叫 Add / Remove，否則會破壞大廳與房間的二選一不變式。
type Room struct {
	ID        string
	CreatedAt time.Time

	mu      sync.RWMutex
	members []*Session
}

// BroadcastResult 廣播結果
type BroadcastResult struct {
	Delivered int
	Failed    map[*Session]error
}

// NewRoom 創建空房間
func NewRoom() *Room {
	return &Room{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

// Add 加入成員（不檢查重複，由 Manager 負責）
func (r *Room) Add(s *Session) {
	r.mu.Lock()
	r.members = append(r.members, s)
	r.mu.Unlock()
}

// Remove 依身份移除成員，不存在時不做任何事
func (r *Room) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.members {
		if m.ID() == s.ID() {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

// List 返回成員快照（依加入順序）
func (r *Room) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Session, len(r.members))
	copy(members, r.members)
	return members
}

// Len 返回成員數量
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Has 檢查 Session 是否為成員
func (r *Room) Has(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.members {
		if m.ID() == s.ID() {
			return true
		}
	}
	return false
}

// Broadcast 依成員順序發送給每一位成員
//
// 單一成員發送失敗只記錄在結果中，不會中斷其他成員的投遞，也不會返回錯誤。
// 發送在釋放鎖之後進行，廣播期間的加入/離開不會被阻塞。
func (r *Room) Broadcast(data []byte) BroadcastResult {
	members := r.List()

	result := BroadcastResult{}
	for _, m := range members {
		if err := m.Send(data); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[*Session]error)
			}
			result.Failed[m] = err
			continue
		}
		result.Delivered++
	}
	return result
}
