package domain

// Room is the append-only message log of the current session.
// Order is arrival order: local sends are appended before any transport
// acknowledgment and are never reordered against remote messages.
type Room struct {
	Name     string
	messages []Message
}

func NewRoom(name string) *Room {
	return &Room{
		Name:     name,
		messages: nil,
	}
}

func (r *Room) PostMessage(message Message) {
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the log.
func (r *Room) Messages() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Room) Len() int {
	return len(r.messages)
}

// Reset drops every message. Only a full session reset calls it.
func (r *Room) Reset(name string) {
	r.Name = name
	r.messages = nil
}
