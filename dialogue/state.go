package dialogue

import "content_ideas_assistant/generator"

// State is a step of the conversation.
type State int

const (
	StateInitial State = iota
	StateCollectingNiche
	StateCollectingGoal
	StateCollectingFormat
	StateGeneratingIdeas
	StateWaitingIdeaChoice
	StateAskingImage
	StateGeneratingPost
	StateCompleted
)

var stateNames = map[State]string{
	StateInitial:           "INITIAL",
	StateCollectingNiche:   "COLLECTING_NICHE",
	StateCollectingGoal:    "COLLECTING_GOAL",
	StateCollectingFormat:  "COLLECTING_FORMAT",
	StateGeneratingIdeas:   "GENERATING_IDEAS",
	StateWaitingIdeaChoice: "WAITING_IDEA_CHOICE",
	StateAskingImage:       "ASKING_IMAGE",
	StateGeneratingPost:    "GENERATING_POST",
	StateCompleted:         "COMPLETED",
}

// stateQuestions is the single source for the question asked in a collecting
// state; moderation prompts and redirection texts both read it.
var stateQuestions = map[State]string{
	StateCollectingNiche:  "Какая у тебя ниша или тематика контента?",
	StateCollectingGoal:   "Какая главная цель твоего контента?",
	StateCollectingFormat: "В каком формате ты хочешь создать контент?",
}

var stateFields = map[State]generator.Field{
	StateCollectingNiche:  generator.FieldNiche,
	StateCollectingGoal:   generator.FieldGoal,
	StateCollectingFormat: generator.FieldFormat,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Question returns the question asked in s, empty for non-collecting states.
func (s State) Question() string { return stateQuestions[s] }

// Field returns the answer collected in s.
func (s State) Field() (generator.Field, bool) {
	f, ok := stateFields[s]
	return f, ok
}

// Collecting reports whether s accepts free text.
func (s State) Collecting() bool {
	_, ok := stateFields[s]
	return ok
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateInitial, false
}
