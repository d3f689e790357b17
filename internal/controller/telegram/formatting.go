package telegram

import (
	"fmt"
	"time"
)

// pluralizeRequests возвращает правильное склонение слова "заявка"
func pluralizeRequests(count int) string {
	if count%10 == 1 && count%100 != 11 {
		return "заявка"
	}
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return "заявки"
	}
	return "заявок"
}

// formatDateTime форматирует дату и время
func formatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

func requestsHeader(count int) string {
	return fmt.Sprintf("📨 У вас %d %s", count, pluralizeRequests(count))
}
