package room

import (
	"strings"

	"github.com/adwski/blackboard/backend/model"
)

// ChatLog is an append-only list of messages in arrival order.
type ChatLog struct {
	messages []model.ChatMessage
}

// Post appends a message unless it is blank.
func (c *ChatLog) Post(username, message string) (model.ChatMessage, bool) {
	if strings.TrimSpace(message) == "" {
		return model.ChatMessage{}, false
	}
	msg := model.ChatMessage{Username: username, Message: message}
	c.messages = append(c.messages, msg)
	return msg, true
}

func (c *ChatLog) Len() int {
	return len(c.messages)
}

func (c *ChatLog) Messages() []model.ChatMessage {
	msgs := make([]model.ChatMessage, len(c.messages))
	copy(msgs, c.messages)
	return msgs
}
