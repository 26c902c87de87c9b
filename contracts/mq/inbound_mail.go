package mq

import "time"

const (
	// RoutingKeyMailInbound 网关收到原始邮件后发布的事件
	RoutingKeyMailInbound = "mail.inbound"
)

// InboundMailPayload carries one raw message from the gateway to the worker.
// Raw is base64 encoded by encoding/json.
type InboundMailPayload struct {
	// ID 网关分配，用于跨重投递计数
	ID           string            `json:"id,omitempty"`
	Raw          []byte            `json:"raw"`
	EnvelopeFrom string            `json:"envelope_from,omitempty"`
	EnvelopeTo   string            `json:"envelope_to,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ReceivedAt   time.Time         `json:"received_at"`
}
