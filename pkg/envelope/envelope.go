package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type discriminates the payload carried by an envelope.
type Type string

const (
	TypeText  Type = "text"
	TypeMedia Type = "media"
)

// Envelope is the canonical message record moved through both queues.
// JSON keys are the wire contract shared with the queue consumers.
type Envelope struct {
	ChatID    string `json:"chatId"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
	Type      Type   `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	MIME      string `json:"mime,omitempty"`
	FromMe    bool   `json:"fromMe"`
}

// DecodeError marks a queue payload that can never be decoded. The outbound
// loop treats it as poison and discards the message.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewText builds a text envelope stamped with the current time.
func NewText(chatID, sender, text string, fromMe bool) Envelope {
	return Envelope{
		ChatID:    chatID,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
		Type:      TypeText,
		Text:      text,
		FromMe:    fromMe,
	}
}

// HasContent reports whether the envelope carries a meaningful payload.
// Envelopes without text and without a media reference must not be enqueued.
func (e Envelope) HasContent() bool {
	if strings.TrimSpace(e.Text) != "" {
		return true
	}

	return e.Type == TypeMedia && (e.MediaURL != "" || e.MIME != "")
}

// Encode frames the envelope for queue transport: JSON, then base64.
func (e Envelope) Encode() (string, error) {
	doc, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	return base64.StdEncoding.EncodeToString(doc), nil
}

// Decode inverts Encode. Payloads that are not base64 are also accepted as
// plain JSON, since HTTP-side producers enqueue the document unframed.
func Decode(payload string) (Envelope, error) {
	trimmed := strings.TrimSpace(payload)

	doc, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		doc = []byte(trimmed)
	}

	var env Envelope
	if jsonErr := json.Unmarshal(doc, &env); jsonErr != nil {
		return Envelope{}, &DecodeError{Payload: payload, Err: jsonErr}
	}

	if env.ChatID == "" {
		return Envelope{}, &DecodeError{Payload: payload, Err: fmt.Errorf("missing chatId")}
	}

	return env, nil
}
