package models

import "time"

type Conversation struct {
	ID                string         `json:"id"`
	Participants      []string       `json:"participants"`
	IsAnonymousThread bool           `json:"isAnonymousThread"`
	LastMessage       string         `json:"lastMessage"`
	LastUpdated       time.Time      `json:"lastUpdated"`
	UnreadCounts      map[string]int `json:"unreadCounts"`
}

// Clone returns a deep copy so snapshots handed to subscribers never alias store state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return &out
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       *string   `json:"senderId"`
	SenderName     string    `json:"senderName"`
	RecipientID    string    `json:"recipientId"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"isRead"`
	IsAnonymous    bool      `json:"isAnonymous"`
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.SenderID != nil {
		id := *m.SenderID
		out.SenderID = &id
	}
	return &out
}
