package assistant

import (
	"fmt"
	"strings"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
)

const (
	textNotHandled      = "Не удалось обработать сообщение. Попробуйте еще раз."
	textPhotoNotHandled = "Обработка фото пока не реализована. Отправьте текстовое описание того, что вы съели."
	textVoiceNotHandled = "Обработка голосовых сообщений пока не доступна. Отправьте текстовое описание того, что вы съели."

	textDatabaseError = "❌ Ошибка базы данных. Попробуйте позже."
	textAIError       = "❌ Не удалось распознать блюда. Попробуйте описать еду подробнее."
	textVoiceError    = "❌ Не удалось распознать голосовое сообщение. Попробуйте еще раз или напишите текстом."

	textEditPrompt    = "✏️ Введите изменения или уточнения для этого приема пищи."
	textEditSuccess   = "✅ Запись обновлена."
	textEditError     = "❌ Не удалось обновить запись. Попробуйте сформулировать изменения иначе."
	textEditMismatch  = "❌ Не удалось сопоставить изменения со всеми блюдами. Уточните, что нужно изменить."
	textEditNotFound  = "❌ Запись не найдена. Возможно, она уже удалена."
	textEditCancelled = "Редактирование отменено."
	textEditedSuffix  = "\n\n✏️ Изменено"

	textDeleteSuccess  = "🗑 Прием пищи удален."
	textDeleteError    = "❌ Не удалось удалить запись. Попробуйте позже."
	textDeleteNotFound = "❌ Запись не найдена. Возможно, она уже удалена."

	textInvalidAction  = "Эта кнопка больше не работает."
	textUnknownCommand = "Неизвестная команда. Используйте /help."

	labelEdit   = "Редактировать"
	labelDelete = "Удалить"
	labelCancel = "Отменить"

	textHelp = `🤖 Доступные команды:
/start - Начать диалог
/help - Получить справку
/nextday - Создать следующий день
/dayresult - Показать записи за текущий день
/timezone <зона> - Установить часовой пояс, например /timezone Europe/Moscow

💡 Просто напишите, что вы съели, и бот посчитает КБЖУ.
Новый день начинается автоматически в 04:00 по вашему времени.`
)

func startText(name string, day int) string {
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf("Привет, %s! 👋\nЯ бот для подсчета КБЖУ.\nСейчас идет День %d. Просто напишите, что вы съели, и я сохраню это!", name, day)
}

func nextDayText(day int) string {
	return fmt.Sprintf("✅ Создан День %d!\nТеперь все записи о еде будут относиться к этому дню.\nИспользуйте /dayresult чтобы посмотреть записи за день.", day)
}

func dayResultEmptyText(day int) string {
	return fmt.Sprintf("📭 В Дне %d ещё нет записей о еде.\nНапишите что-нибудь, и я сохраню это!", day)
}

func timezoneUsageText(current string) string {
	return fmt.Sprintf("Текущий часовой пояс: %s\nЧтобы изменить, отправьте /timezone <зона>, например /timezone Asia/Yekaterinburg", current)
}

func timezoneSetText(tz string) string {
	return fmt.Sprintf("✅ Часовой пояс установлен: %s", tz)
}

func timezoneInvalidText(tz string) string {
	return fmt.Sprintf("❌ Неизвестный часовой пояс %q. Используйте имя из базы IANA, например Europe/Moscow.", tz)
}

func voiceRecognisedText(text string) string {
	return fmt.Sprintf("🎤 Распознано: %s", text)
}

func formatDish(d models.Dish, index int) string {
	var b strings.Builder
	if index > 0 {
		fmt.Fprintf(&b, "%d. ", index)
	}
	b.WriteString(d.Name)
	if d.Grams > 0 {
		fmt.Fprintf(&b, " (%d г)", d.Grams)
	}
	fmt.Fprintf(&b, "\n%d ккал, %d белков, %d жиров, %d углеводов", d.Calories, d.Protein, d.Fat, d.Carbs)
	return b.String()
}

func formatTotals(t models.DayTotals) string {
	return fmt.Sprintf("%d ккал, %d белков, %d жиров, %d углеводов", t.Calories, t.Protein, t.Fat, t.Carbs)
}

// batchText lists dishes numbered after the start entries already in the day.
func batchText(day int, dishes []models.Dish, start int) string {
	var b strings.Builder
	if day > 0 {
		fmt.Fprintf(&b, "📝 День %d\n\n", day)
	}
	for i, d := range dishes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(formatDish(d, start+i+1))
	}
	if len(dishes) > 1 {
		b.WriteString("\n\nИтого: ")
		b.WriteString(formatTotals(models.Totals(dishes)))
	}
	return b.String()
}

func dayResultText(day int, entries []models.FoodEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 День %d\n\n", day)
	dishes := make([]models.Dish, 0, len(entries))
	for i, e := range entries {
		d := e.Dish()
		dishes = append(dishes, d)
		b.WriteString(formatDish(d, i+1))
		b.WriteString("\n\n")
	}
	t := models.Totals(dishes)
	fmt.Fprintf(&b, "Итого за день (%d): %s", t.Count, formatTotals(t))
	return b.String()
}
