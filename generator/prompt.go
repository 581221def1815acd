package generator

import (
	"fmt"
	"strings"

	"content_ideas_assistant/gateway"
)

// Prompt is the set of messages sent for one generation call.
type Prompt struct {
	System  string
	User    string
	History []gateway.Message
}

// Messages flattens the prompt into chat turns.
func (p Prompt) Messages() []gateway.Message {
	msgs := make([]gateway.Message, 0, len(p.History)+2)
	if p.System != "" {
		msgs = append(msgs, gateway.Message{Role: gateway.RoleSystem, Content: p.System})
	}
	msgs = append(msgs, p.History...)
	return append(msgs, gateway.Message{Role: gateway.RoleUser, Content: p.User})
}

const creatorRole = "Ты - креативный специалист по контент-маркетингу с богатым опытом."

// BuildIdeasPrompt asks for exactly IdeaCount ideas as JSON.
func BuildIdeasPrompt(b Brief) Prompt {
	var sb strings.Builder
	sb.WriteString("Придумай 5 уникальных идей для контента.\n\n")
	fmt.Fprintf(&sb, "Ниша: %s\n", b.Niche)
	fmt.Fprintf(&sb, "Цель контента: %s\n", b.Goal)
	fmt.Fprintf(&sb, "Формат: %s\n\n", b.Format)
	sb.WriteString("Требования:\n")
	sb.WriteString("- идеи должны отличаться подходом и подачей;\n")
	sb.WriteString("- каждая идея работает на указанную цель и подходит под формат;\n")
	sb.WriteString("- название короткое и цепляющее, описание в 2-3 предложениях;\n")
	sb.WriteString("- 3-5 ключевых элементов, которые нужно раскрыть.\n\n")
	sb.WriteString("Ответь строго в формате JSON:\n")
	sb.WriteString(`{"ideas": [{"id": 1, "title": "...", "description": "...", "key_elements": ["...", "..."]}]}`)
	sb.WriteString("\nВ массиве ideas ровно 5 элементов с id от 1 до 5.")
	return Prompt{System: creatorRole, User: sb.String()}
}

// BuildPostPrompt asks for the final post built around idea.
func BuildPostPrompt(b Brief, idea Idea) Prompt {
	quoted := make([]string, len(idea.KeyElements))
	for i, el := range idea.KeyElements {
		quoted[i] = fmt.Sprintf("%q", el)
	}

	var sb strings.Builder
	sb.WriteString("Напиши готовый к публикации текст.\n\n")
	fmt.Fprintf(&sb, "Ниша: %s\n", b.Niche)
	fmt.Fprintf(&sb, "Цель контента: %s\n", b.Goal)
	fmt.Fprintf(&sb, "Формат: %s\n\n", b.Format)
	fmt.Fprintf(&sb, "Идея: %s\n", idea.Title)
	fmt.Fprintf(&sb, "Описание идеи: %s\n", idea.Description)
	fmt.Fprintf(&sb, "Ключевые элементы: %s\n\n", strings.Join(quoted, ", "))
	sb.WriteString("Требования:\n")
	sb.WriteString("- живой язык без канцелярита, структура под указанный формат;\n")
	sb.WriteString("- раскрой все ключевые элементы;\n")
	sb.WriteString("- добавь призыв к действию, который ведет к цели.\n\n")
	sb.WriteString("Ответь строго в формате JSON:\n")
	sb.WriteString(`{"post": {"title": "...", "content": "...", "hashtags": ["..."], "call_to_action": "..."}}`)
	return Prompt{System: creatorRole, User: sb.String()}
}

// BuildImagePromptPrompt asks for an English prompt for the image model.
// Post content longer than limit runes is cut.
func BuildImagePromptPrompt(b Brief, post Post, limit int) Prompt {
	content := truncateRunes(post.Content, limit)

	var sb strings.Builder
	sb.WriteString("Составь промпт для генерации иллюстрации к публикации.\n\n")
	fmt.Fprintf(&sb, "Ниша: %s\n", b.Niche)
	fmt.Fprintf(&sb, "Формат: %s\n", b.Format)
	fmt.Fprintf(&sb, "Заголовок: %s\n", post.Title)
	fmt.Fprintf(&sb, "Текст:\n%s\n\n", content)
	sb.WriteString("Требования:\n")
	sb.WriteString("- промпт на английском языке, 40-80 слов;\n")
	sb.WriteString("- опиши сцену, стиль, освещение и композицию;\n")
	sb.WriteString("- без текста и надписей на изображении.\n\n")
	sb.WriteString("Ответь строго в формате JSON:\n")
	sb.WriteString(`{"image_prompt": {"full_prompt": "..."}}`)
	return Prompt{System: creatorRole, User: sb.String()}
}

// BuildReformulatePrompt rewrites a raw answer into a short display form.
// ok is false for fields that are never reformulated.
func BuildReformulatePrompt(field Field, text string) (p Prompt, ok bool) {
	var rules string
	switch field {
	case FieldNiche:
		rules = "Переформулируй текст пользователя в грамотную форму для описания ниши/темы.\n\n" +
			"Пользователь написал: \"%s\"\n\n" +
			"Правила:\n" +
			"- Если написано как действие (\"я хлеб пеку\", \"делаю мебель\"), преобразуй в существительное (\"Выпечка хлеба\", \"Изготовление мебели\")\n" +
			"- Если написано некорректно, сделай грамотно\n" +
			"- Сохрани смысл, но сделай формулировку профессиональной\n" +
			"- Максимум 3-5 слов\n"
	case FieldGoal:
		rules = "Переформулируй цель пользователя в грамотную форму.\n\n" +
			"Пользователь написал: \"%s\"\n\n" +
			"Правила:\n" +
			"- Преобразуй в отглагольное существительное (\"хочу клиентов\" → \"Привлечение клиентов\")\n" +
			"- Сделай формулировку четкой и профессиональной\n" +
			"- Максимум 5-7 слов\n"
	case FieldFormat:
		rules = "Переформулируй формат контента в грамотную форму.\n\n" +
			"Пользователь написал: \"%s\"\n\n" +
			"Правила:\n" +
			"- Сделай формулировку четкой (\"пост инсте\" → \"Пост для Instagram\")\n" +
			"- Сохрани смысл\n" +
			"- Максимум 5-7 слов\n"
	default:
		return Prompt{}, false
	}
	user := fmt.Sprintf(rules, text) + "\nОтветь ТОЛЬКО переформулированным текстом, без объяснений."
	return Prompt{User: user}, true
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
