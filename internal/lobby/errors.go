package lobby

import "errors"

// 成員管理相關錯誤
var (
	// ErrNotFound 找不到 connectionID 對應的 Session（正常流程不應發生）
	ErrNotFound = errors.New("user not found")

	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = errors.New("room not found")

	// ErrAlreadyInRoom 使用者已在房間中
	ErrAlreadyInRoom = errors.New("user is already in a room")

	// ErrNotInRoom 使用者不在任何房間中
	ErrNotInRoom = errors.New("user is not in a room")

	// ErrAlreadyConnected 舊連線仍未關閉，拒絕重連
	ErrAlreadyConnected = errors.New("socket is already open")
)
