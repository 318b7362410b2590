package datastores

import "time"

// birthdayWithin reports whether the next anniversary of birthday falls
// within [today, today+days]. The year of birthday is ignored and a
// February 29 birthday is celebrated on March 1 in common years.
func birthdayWithin(birthday string, today time.Time, days int) bool {
	date, err := time.Parse(time.DateOnly, birthday)
	if err != nil || days < 0 {
		return false
	}
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	next := anniversary(date, today.Year())
	if next.Before(today) {
		next = anniversary(date, today.Year()+1)
	}
	return !next.After(today.AddDate(0, 0, days))
}

func anniversary(date time.Time, year int) time.Time {
	return time.Date(year, date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}
