package domain

import "time"

// DeliveryStatusReceived is the gateway status carried by a genuine inbound
// message. Other statuses (SENT, READ, ...) are delivery receipts.
const DeliveryStatusReceived = "RECEIVED"

// InboundEvent is one webhook delivery from the messaging gateway.
type InboundEvent struct {
	EventID       string
	Sender        string
	FromMe        bool
	IsStatusReply bool
	IsEdit        bool
	Status        string
	Payload       Payload
	ReceivedAt    time.Time
}

// Payload carries the message content in whichever shape the gateway sent.
type Payload struct {
	Text     string
	Contact  *Contact
	Contacts []Contact
}

// Contact is a shared contact card. VCard holds the raw blob when the gateway
// forwards one instead of structured fields.
type Contact struct {
	Name  string
	Phone string
	VCard string
}

// DeliveryReceipt is the gateway acknowledgement for an outbound message.
type DeliveryReceipt struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
}
