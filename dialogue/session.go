package dialogue

import (
	"time"

	"content_ideas_assistant/generator"
)

// User identifies the person on the other side of a transport.
type User struct {
	ID     int64
	ChatID int64
	Name   string
}

// Session is the per-user conversation state.
type Session struct {
	UserID int64
	ChatID int64
	Name   string
	State  State

	// Answers keeps the raw replies used for generation; Display keeps the
	// reformulated versions shown back to the user.
	Answers map[generator.Field]string
	Display map[generator.Field]string

	OffTopicCount  int
	OffensiveCount int

	Ideas        []generator.Idea
	SelectedIdea *generator.Idea
	NeedsImage   bool

	// ButtonsMessageID is the last outbound message that still shows buttons.
	ButtonsMessageID string
	LastActivity     time.Time
}

// NewSession returns an empty session for u.
func NewSession(u User) *Session {
	s := &Session{UserID: u.ID, ChatID: u.ChatID, Name: u.Name}
	s.Reset()
	return s
}

// Reset clears everything except identity and returns to StateInitial.
func (s *Session) Reset() {
	s.State = StateInitial
	s.Answers = map[generator.Field]string{}
	s.Display = map[generator.Field]string{}
	s.OffTopicCount = 0
	s.OffensiveCount = 0
	s.Ideas = nil
	s.SelectedIdea = nil
	s.NeedsImage = false
	s.ButtonsMessageID = ""
}

// Brief returns the raw answers as generation input.
func (s *Session) Brief() generator.Brief {
	return generator.Brief{
		Niche:  s.Answers[generator.FieldNiche],
		Goal:   s.Answers[generator.FieldGoal],
		Format: s.Answers[generator.FieldFormat],
	}
}

// display returns the reformulated answer, falling back to the raw one.
func (s *Session) display(f generator.Field) string {
	if v := s.Display[f]; v != "" {
		return v
	}
	return s.Answers[f]
}

// Idea returns the idea with id from the current batch.
func (s *Session) Idea(id int) (generator.Idea, bool) {
	for _, idea := range s.Ideas {
		if idea.ID == id {
			return idea, true
		}
	}
	return generator.Idea{}, false
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Answers = make(map[generator.Field]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.Display = make(map[generator.Field]string, len(s.Display))
	for k, v := range s.Display {
		c.Display[k] = v
	}
	if s.Ideas != nil {
		c.Ideas = make([]generator.Idea, len(s.Ideas))
		for i, idea := range s.Ideas {
			idea.KeyElements = append([]string(nil), idea.KeyElements...)
			c.Ideas[i] = idea
		}
	}
	if s.SelectedIdea != nil {
		idea := *s.SelectedIdea
		idea.KeyElements = append([]string(nil), idea.KeyElements...)
		c.SelectedIdea = &idea
	}
	return &c
}
