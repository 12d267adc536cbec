package websocket

import (
	"encoding/json"

	"social-go/internal/models"
)

// 客户端发来的帧类型
const (
	FrameSend        = "send"         // 发送草稿；content 非空时先覆盖草稿
	FrameDraft       = "draft"        // 更新草稿
	FrameViewport    = "viewport"     // 是否滚动在底部附近
	FrameAuthRefresh = "auth_refresh" // 令牌刷新
	FrameUnblock     = "unblock"
)

// 服务端推送的帧类型
const (
	FrameState         = "state"
	FrameHistory       = "history"
	FrameMessage       = "message"
	FrameNotice        = "notice"
	FrameSendResult    = "send_result"
	FrameUnblockResult = "unblock_result"
	FrameError         = "error"
)

// InboundFrame is a client frame.
type InboundFrame struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	Token      string `json:"token,omitempty"`
	NearBottom *bool  `json:"nearBottom,omitempty"`
}

// OutboundFrame wraps every server push as {"type": ..., "data": ...}.
type OutboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MessagePayload is the data of a "message" frame.
type MessagePayload struct {
	Message    models.Message `json:"message"`
	AutoScroll bool           `json:"autoScroll"`
}

func encodeFrame(frameType string, data any) ([]byte, error) {
	return json.Marshal(OutboundFrame{Type: frameType, Data: data})
}
