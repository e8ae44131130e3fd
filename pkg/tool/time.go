package tool

import "time"

// RoundToDate округляет дату в t до круглого дня
func RoundToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AtMinute возвращает момент дня day, отстоящий от полуночи на minute минут
func AtMinute(day time.Time, minute int) time.Time {
	return RoundToDate(day).Add(time.Duration(minute) * time.Minute)
}

// AgeAt полное количество лет на момент at для даты рождения birth
func AgeAt(birth, at time.Time) int {
	if birth.IsZero() || at.Before(birth) {
		return 0
	}
	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age
}
