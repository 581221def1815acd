package dialogue

import (
	"fmt"
	"strings"

	"content_ideas_assistant/generator"
)

var (
	noImageKeywords = []string{
		"сценарий", "скрипт", "инструкция", "план", "текст",
		"email", "письмо", "рассылка", "описание",
	}
	imageKeywords = []string{
		"пост", "статья", "публикация", "заметка", "блог",
		"instagram", "facebook", "vk", "telegram", "соцсет",
	}
)

// ShouldOfferImage decides whether a format is usually published with an
// illustration. No-illustration keywords win; unknown formats get the offer.
func ShouldOfferImage(format string) bool {
	f := strings.ToLower(format)
	for _, kw := range noImageKeywords {
		if strings.Contains(f, kw) {
			return false
		}
	}
	for _, kw := range imageKeywords {
		if strings.Contains(f, kw) {
			return true
		}
	}
	return true
}

// illustrationQuestion phrases the offer in the dative case of the format.
func illustrationQuestion(display string) string {
	lower := strings.ToLower(display)
	dative := func(nom, dat string) string {
		return strings.ToLower(strings.ReplaceAll(lower, nom, dat))
	}
	switch {
	case strings.Contains(lower, "пост") && strings.Contains(lower, "для"):
		return fmt.Sprintf("Нужна иллюстрация к %s?", dative("пост", "посту"))
	case strings.Contains(lower, "пост"):
		return "Нужна иллюстрация к посту?"
	case strings.Contains(lower, "статья"):
		return fmt.Sprintf("Нужна иллюстрация к %s?", dative("статья", "статье"))
	case strings.Contains(lower, "сценарий"):
		return fmt.Sprintf("Нужна иллюстрация к %s?", dative("сценарий", "сценарию"))
	case strings.Contains(lower, "email") || strings.Contains(lower, "письмо") || strings.Contains(lower, "рассылка"):
		return "Нужна иллюстрация к рассылке?"
	default:
		return "Нужна иллюстрация для этого контента?"
	}
}

const ideaSeparator = "━━━━━━━━━━━━━━━━"

// FormatIdeas renders a batch with numbered titles and key elements.
func FormatIdeas(ideas []generator.Idea) string {
	parts := []string{fmt.Sprintf("Вот %d идей для твоего контента 💡\n", len(ideas))}
	for _, idea := range ideas {
		parts = append(parts, ideaSeparator)
		parts = append(parts, fmt.Sprintf("💡 **Идея %d: \"%s\"**\n", idea.ID, idea.Title))
		parts = append(parts, idea.Description+"\n")
		if len(idea.KeyElements) > 0 {
			parts = append(parts, "**Ключевые элементы:**")
			for _, el := range idea.KeyElements {
				parts = append(parts, "• "+el)
			}
			parts = append(parts, "")
		}
	}
	parts = append(parts, ideaSeparator)
	parts = append(parts, "\nКакая идея тебе больше нравится? Выбери номер 👇")
	return strings.Join(parts, "\n")
}

// FormatPost returns the post content, appending hashtags unless the content
// already mentions one of them.
func FormatPost(p generator.Post) string {
	content := p.Content
	if len(p.Hashtags) == 0 {
		return content
	}
	tags := make([]string, len(p.Hashtags))
	for i, t := range p.Hashtags {
		tag := "#" + t
		if strings.Contains(content, tag) {
			return content
		}
		tags[i] = tag
	}
	return content + "\n\n" + strings.Join(tags, " ")
}

var postFrame = strings.Repeat("━", 30)

func framePost(text string) string {
	return postFrame + "\n\n" + text + "\n\n" + postFrame
}
