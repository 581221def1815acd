package moderation

import "fmt"

// User-facing texts of the escalation policy.
const (
	Farewell = "Понимаю, что сейчас ты не готов работать над контентом 😌\n\n" +
		"Возвращайся, когда будешь готов! Отправь /start для начала новой сессии.\n\n" +
		"Всего хорошего! 👋"

	RespectRequest = "Пожалуйста, давай общаться уважительно 🙏\n\n" +
		"Я здесь, чтобы помочь с созданием контента.\n\n" +
		"Если у тебя есть вопросы или проблемы, давай обсудим их конструктивно."

	OffensiveGoodbye = "Мне жаль, но я не могу продолжать общение в таком ключе.\n\n" +
		"Если захочешь работать над контентом, буду рад помочь.\n\n" +
		"До встречи! 👋"
)

// Redirection returns the message for the given off-topic attempt. It grows
// firmer with every attempt and always re-asks question; a non-empty
// suggestion replaces the first-level text.
func Redirection(attempt int, question, suggestion string) string {
	switch {
	case attempt <= 1:
		if suggestion != "" {
			return suggestion
		}
		return fmt.Sprintf("Давай сосредоточимся на создании твоего контента 😊\n\n%s", question)
	case attempt == 2:
		return fmt.Sprintf("Я понимаю, что тебе интересно, но я создан специально для генерации идей контента 🎯\n\n"+
			"Пожалуйста, давай вернемся к нашей задаче.\n\n%s", question)
	default:
		return fmt.Sprintf("Я вижу, что тебя что-то отвлекает 😔\n\n"+
			"Мне важно помочь тебе создать качественный контент, но для этого мне нужна информация.\n\n"+
			"Если сейчас не подходящее время, мы можем продолжить позже.\n\n"+
			"Готов ответить на мой вопрос?\n\n%s", question)
	}
}
