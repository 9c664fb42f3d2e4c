// protocols/envelope/envelope.go
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeRFIDScan    = "RFID_SCAN"
	TypePOSResponse = "POS_RESPONSE"
)

// TimestampLayout 与浏览器 toISOString 输出一致（UTC，毫秒）
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Message 是跨上下文消息的封闭变体：Scan、Response 或 Unknown
type Message interface {
	messageType() string
}

// Scan 是发往 POS 的扫描事件
type Scan struct {
	ProductID string
	Timestamp string
}

// Response 是 POS 处理扫描后的应答
type Response struct {
	Success bool
	Error   string
}

// Unknown 表示任何不符合约定形状的消息
type Unknown struct {
	Type string
	Raw  []byte
}

func (Scan) messageType() string     { return TypeRFIDScan }
func (Response) messageType() string { return TypePOSResponse }
func (u Unknown) messageType() string { return u.Type }

// NewScan 以给定时间构造扫描事件
func NewScan(productID string, at time.Time) Scan {
	return Scan{
		ProductID: productID,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

type wire struct {
	Type      string  `json:"type"`
	ProductID *string `json:"productId,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
	Success   *bool   `json:"success,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Encode 把消息编码为线上的 JSON 信封
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Scan:
		return json.Marshal(wire{
			Type:      TypeRFIDScan,
			ProductID: &m.ProductID,
			Timestamp: &m.Timestamp,
		})
	case Response:
		w := wire{Type: TypePOSResponse, Success: &m.Success}
		if m.Error != "" {
			w.Error = &m.Error
		}
		return json.Marshal(w)
	default:
		return nil, fmt.Errorf("cannot encode message of type %T", msg)
	}
}

// Decode 校验并解析入站数据，任何不合规的输入都返回 Unknown，从不报错
func Decode(data []byte) Message {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 {
		return Unknown{Raw: data}
	}

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Unknown{Raw: data}
	}

	switch w.Type {
	case TypeRFIDScan:
		if w.ProductID == nil || w.Timestamp == nil {
			return Unknown{Type: w.Type, Raw: data}
		}
		return Scan{ProductID: *w.ProductID, Timestamp: *w.Timestamp}
	case TypePOSResponse:
		if w.Success == nil {
			return Unknown{Type: w.Type, Raw: data}
		}
		resp := Response{Success: *w.Success}
		if w.Error != nil {
			resp.Error = *w.Error
		}
		return resp
	default:
		return Unknown{Type: w.Type, Raw: data}
	}
}
