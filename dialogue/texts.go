package dialogue

import (
	"fmt"
	"strings"
)

const examplesHint = "Например: фитнес, бизнес, образование, психология, кулинария и т.д.\n\n" +
	"💡 *Можешь отвечать голосовыми сообщениями!*"

func firstTimeGreeting(name string) string {
	return fmt.Sprintf("Привет, %s! 👋\n\n"+
		"Я помогу тебе создать крутые идеи для контента и превратить их в готовые посты с изображениями.\n\n"+
		"**Как это работает:**\n"+
		"1️⃣ Расскажешь мне о своей нише\n"+
		"2️⃣ Укажешь цель контента\n"+
		"3️⃣ Выберешь формат\n"+
		"4️⃣ Я сгенерирую 5 идей\n"+
		"5️⃣ Ты выберешь лучшую\n"+
		"6️⃣ Получишь готовый пост с изображением!\n\n"+
		"Это займет всего пару минут ⚡\n\n"+
		"Давай начнем!\n\n"+
		"**Какая у тебя ниша?**\n\n%s", name, examplesHint)
}

func afterBreakGreeting(name string) string {
	return fmt.Sprintf("С возвращением, %s! 👋\n\nСоздаём новый пост?\n\n**Какая у тебя ниша?**\n\n%s", name, examplesHint)
}

var shortGreetings = []string{
	"Продолжим, {name}! 🚀\n\n**Какая ниша?**",
	"Окей, {name}! 👌\n\n**Новый пост? Какая ниша?**",
	"Го дальше! ⚡\n\n**Какая ниша?**",
	"Ещё один пост? 💪\n\n**Ниша?**",
	"Создаём! 🎯\n\n**Какая ниша?**",
	"Поехали, {name}! 🔥\n\n**Ниша?**",
}

func continueGreeting(name string, pick int) string {
	base := strings.ReplaceAll(shortGreetings[pick%len(shortGreetings)], "{name}", name)
	return base + "\n\n" + examplesHint
}

func nicheAccepted(display string) string {
	return fmt.Sprintf("Отлично! **%s** - интересная ниша 💡\n\n"+
		"Теперь скажи, **какая главная цель твоего контента?**\n\n"+
		"Например:\n"+
		"• Привлечь новых подписчиков\n"+
		"• Продать продукт или услугу\n"+
		"• Обучить аудиторию\n"+
		"• Повысить вовлеченность\n"+
		"• Что-то другое?", display)
}

func goalAccepted(display string) string {
	return fmt.Sprintf("Понял! **%s** 🎯\n\n"+
		"Последний вопрос: **в каком формате ты хочешь создать контент?**\n\n"+
		"Например:\n"+
		"• Пост для Instagram/VK/Facebook\n"+
		"• Статья для блога или Telegram-канала\n"+
		"• Сценарий для видео/Reels/Shorts\n"+
		"• Email-рассылка\n"+
		"• Что-то другое?", display)
}

func formatAccepted(display string) string {
	return fmt.Sprintf("Супер! **%s** ✨\n\nСейчас подумаю и предложу тебе **5 крутых идей** для контента! 🤔", display)
}

func ideaChosen(title string) string {
	return fmt.Sprintf("Отлично! ✨\n\nИдея **\"%s\"**", title)
}

const (
	textGeneratingIdeas = "⏳ Генерирую идеи..."
	textIdeasFailed     = "😔 Произошла ошибка при генерации идей.\n\n" +
		"Попробуйте еще раз через пару секунд, или отправьте /start для перезапуска."
	textRegenerating = "Хорошо, генерирую другие идеи! 🔄"
	textIdeaNotFound = "😔 Ошибка: идея не найдена. Попробуйте еще раз."

	textMakingText = "Сейчас создам для тебя готовый текст...\n\n⏳ Это займет около 20-30 секунд"
	textMakingPost = "Сейчас создам для тебя готовый пост с изображением...\n\n⏳ Это займет около 30-40 секунд"
	textPostFailed = "😔 Произошла ошибка при генерации.\n\n" +
		"Попробуйте еще раз или отправьте /start для перезапуска."
	textDone = "✅ Готово!\n\nЧто делаем дальше?"

	textRestart = "Отлично! Давай создадим еще один 🚀\n\n**Какая у тебя ниша?**"
	textFinish  = "Было приятно помочь! 😊\n\n" +
		"Возвращайся, когда понадобятся новые идеи для контента.\n\n" +
		"Нажми **✨ Новый диалог** когда будешь готов создать новый пост.\n\n" +
		"Удачи с твоим контентом! 🚀"

	textNeedButtons = "Спасибо! Но сейчас мне нужен выбор из кнопок, а не текст 😊"
	textBusy        = "⏳ Я еще работаю над предыдущим запросом, подожди немного."
	textNotStarted  = "Нажми **✨ Новый диалог** или отправь /start, чтобы начать."
	textStaleButton = "Эта кнопка уже неактуальна 🙂"

	textVoiceFailed = "😔 Не удалось распознать голосовое сообщение.\n\n" +
		"Попробуйте:\n" +
		"• Говорить четче и громче\n" +
		"• Уменьшить фоновый шум\n" +
		"• Или отправить текстом"
)

func voiceEcho(text string) string {
	return "📝 Текст сообщения:\n\n" + text
}
