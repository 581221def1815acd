package dialogue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action tokens carried by buttons.
const (
	ActionIdeaPrefix      = "idea_"
	ActionRegenerateIdeas = "regenerate_ideas"
	ActionImageYes        = "need_image_yes"
	ActionImageNo         = "need_image_no"
	ActionCreateNew       = "create_new"
	ActionFinish          = "finish"
)

// Commands that restart the dialogue from any state.
const (
	CommandStart  = "/start"
	NewDialogText = "✨ Новый диалог"
)

// IdeaAction returns the token selecting idea id.
func IdeaAction(id int) string { return ActionIdeaPrefix + strconv.Itoa(id) }

// parseIdeaAction extracts the idea id from a token.
func parseIdeaAction(token string) (int, bool) {
	if !strings.HasPrefix(token, ActionIdeaPrefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(token, ActionIdeaPrefix))
	if err != nil {
		return 0, false
	}
	return id, true
}

// Button is an inline action offered with a message.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Message is one outbound message. Text uses lightweight Markdown.
// RemoveButtons names an earlier message whose buttons must be dropped.
type Message struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	Image         []byte        `json:"-"`
	Buttons       []Button      `json:"buttons,omitempty"`
	RemoveButtons string        `json:"remove_buttons,omitempty"`
	TypingDelay   time.Duration `json:"-"`
}

// MaxTextRunes bounds outbound text.
const MaxTextRunes = 4000

func reply(text string) Message {
	text = Truncate(text, MaxTextRunes)
	return Message{
		ID:          uuid.NewString(),
		Text:        text,
		TypingDelay: TypingDelay(len([]rune(text))),
	}
}

func withButtons(text string, buttons ...Button) Message {
	m := reply(text)
	m.Buttons = buttons
	return m
}

// Truncate cuts s to limit runes, ending with "...".
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// TypingDelay is how long a transport may show "typing" before a message of n runes.
func TypingDelay(n int) time.Duration {
	secs := 0.5 + float64(n)*0.01
	secs = max(secs, 0.5)
	secs = min(secs, 3.0)
	return time.Duration(secs * float64(time.Second))
}

func ideaButtons(ideas int) []Button {
	buttons := make([]Button, 0, ideas+1)
	for i := 1; i <= ideas; i++ {
		buttons = append(buttons, Button{Label: fmt.Sprintf("▫️ Идея %d", i), Action: IdeaAction(i)})
	}
	return append(buttons, Button{Label: "🔄 Другие идеи", Action: ActionRegenerateIdeas})
}

var (
	imageButtons = []Button{
		{Label: "▫️ Да", Action: ActionImageYes},
		{Label: "▫️ Нет", Action: ActionImageNo},
	}
	continueButtons = []Button{
		{Label: "▫️ Создать новый", Action: ActionCreateNew},
		{Label: "▫️ Завершить", Action: ActionFinish},
	}
)
