// Package protocol 定義 WebSocket 文字訊框的 JSON 格式。
//
// 入站請求：
//
//	{ "action": "<string>", "payload": { ... } }
//
// 出站回應：
//
//	{ "success": true,  "data": { ... } }
//	{ "success": false, "data": {}, "error": "<message>" }
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage 入站訊框格式錯誤
var ErrInvalidMessage = errors.New("invalid message")

// Request 入站請求
type Request struct {
	Action  string
	Payload map[string]any
}

// wireRequest 先保留原始 JSON，才能區分「缺少」「null」與「型別錯誤」
type wireRequest struct {
	Action  json.RawMessage `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Decode 解析入站訊框
//
// action 必須是非空字串；payload 必須是物件（不可缺少或為 null）。
func Decode(raw []byte) (Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var action string
	rawAction := bytes.TrimSpace(wire.Action)
	if len(rawAction) == 0 || rawAction[0] != '"' || json.Unmarshal(rawAction, &action) != nil {
		return Request{}, fmt.Errorf("%w: action is not a string", ErrInvalidMessage)
	}
	if action == "" {
		return Request{}, fmt.Errorf("%w: action is empty", ErrInvalidMessage)
	}

	payload := bytes.TrimSpace(wire.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Request{}, fmt.Errorf("%w: payload is not an object", ErrInvalidMessage)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Request{}, fmt.Errorf("%w: payload is not an object", ErrInvalidMessage)
	}

	return Request{Action: action, Payload: fields}, nil
}
