/*
Package model contains the core data structures shared by the sync stores,
the socket layer, and the REST client.

Fields use JSON tags matching the backend wire format.
*/
package model

import "time"

// Session represents the authenticated identity bound to this client.
// It exists only while authenticated and is owned exclusively by the
// session store; all other components read it but never mutate it.
type Session struct {
	UserID    string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Participant is a chat member reference.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Chat is a conversation summary. The participant list is immutable after
// creation; LatestMessage is a denormalized pointer updated whenever a new
// message arrives for the chat.
type Chat struct {
	ID            string        `json:"id"`
	IsGroup       bool          `json:"isGroup"`
	Name          string        `json:"name,omitempty"`
	Participants  []Participant `json:"participants"`
	LatestMessage *Message      `json:"latestMessage,omitempty"`
}

// DisplayName resolves the label for a chat as seen by the user selfID:
// a group chat is labeled by its own name, a one-to-one chat by the other
// participant's username.
func (c Chat) DisplayName(selfID string) string {
	if c.IsGroup {
		return c.Name
	}

	for _, p := range c.Participants {
		if p.ID != selfID {
			return p.Username
		}
	}

	return c.Name
}

// Message is a single chat message. Messages are immutable once created
// and uniquely identified by ID.
type Message struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chatId"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Less reports whether m sorts before other in timeline order, which is
// (CreatedAt, ID) with the ID as tie-break.
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
