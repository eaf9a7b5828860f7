// Package lobby 實現即時訊息服務的連線身份與房間成員管理。
//
// 每個使用者（Session）在任何時刻只會出現在兩個地方之一：
//   - 大廳（lobby）：尚未加入任何房間
//   - 某一個房間（Room）的成員列表
//
// Manager 是唯一可以在大廳與房間之間移動 Session 的元件，
// 所有狀態轉換都經過同一把寫鎖序列化。
//
// 傳輸層（WebSocket 或其他）只需要實作 Transport 介面：
//
//	type Transport interface {
//	    Send(data []byte) error
//	    ReadyState() ReadyState
//	}
//
// 斷線不會把 Session 移出房間；同一個 connectionID 重新連線時，
// 呼叫 Session.Reconnect 換上新的 Transport 即可恢復。
package lobby
