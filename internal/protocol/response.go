package protocol

import (
	"encoding/json"
	"fmt"
)

// Response 出站回應信封
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// Encode 將 handler 結果包成成功回應
//
// result 為 nil 時 data 為空物件。
func Encode(result any) ([]byte, error) {
	if result == nil {
		result = map[string]any{}
	}

	data, err := json.Marshal(Response{Success: true, Data: result})
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

// EncodeError 將錯誤包成失敗回應，error 欄位即 err.Error()
func EncodeError(err error) []byte {
	data, _ := json.Marshal(Response{
		Success: false,
		Data:    map[string]any{},
		Error:   err.Error(),
	})
	return data
}

// DecodeResponse 解析出站回應（供客戶端與測試使用）
func DecodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
