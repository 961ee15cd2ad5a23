package widget

import "time"

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ErrorText is the only thing a user ever sees when a request fails.
const ErrorText = "Sorry, I encountered an error. Please try again."

type Citation struct {
	Title string `json:"title"`
	Page  *int   `json:"page,omitempty"`
}

type Metadata struct {
	Confidence *float64   `json:"confidence,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
	Escalated  bool       `json:"escalated"`
}

type Turn struct {
	ID        uint64    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	IsError   bool      `json:"is_error"`
}

func (t Turn) clone() Turn {
	if t.Metadata == nil {
		return t
	}
	md := *t.Metadata
	if md.Confidence != nil {
		c := *md.Confidence
		md.Confidence = &c
	}
	if md.Citations != nil {
		cits := make([]Citation, len(md.Citations))
		for i, c := range md.Citations {
			if c.Page != nil {
				p := *c.Page
				c.Page = &p
			}
			cits[i] = c
		}
		md.Citations = cits
	}
	t.Metadata = &md
	return t
}

// Session is the conversation state owned by one mounted widget.
type Session struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	StartedAt      time.Time `json:"started_at"`
	Turns          []Turn    `json:"turns"`
	Pending        bool      `json:"pending"`

	nextID uint64
}

// append assigns the next id and timestamp; existing turns are untouched.
func (s *Session) append(t Turn, now time.Time) Turn {
	s.nextID++
	t.ID = s.nextID
	t.Timestamp = now
	s.Turns = append(s.Turns, t)
	return t.clone()
}

func (s *Session) snapshot() Session {
	out := Session{
		TenantID:       s.TenantID,
		ConversationID: s.ConversationID,
		StartedAt:      s.StartedAt,
		Pending:        s.Pending,
		Turns:          make([]Turn, len(s.Turns)),
	}
	for i, t := range s.Turns {
		out.Turns[i] = t.clone()
	}
	return out
}
