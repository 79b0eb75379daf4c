package tz

import "time"

// Paris is the Europe/Paris location (CET/CEST with automatic DST). All
// user-facing dates and times are rendered in this location.
var Paris *time.Location

func init() {
	var err error
	Paris, err = time.LoadLocation("Europe/Paris")
	if err != nil {
		panic("tz: load Europe/Paris: " + err.Error())
	}
}

// Clock renders t as a Paris-local "15:04" time.
func Clock(t time.Time) string {
	return t.In(Paris).Format("15:04")
}

// DateTime renders t as a Paris-local "02/01/2006 à 15:04" timestamp.
func DateTime(t time.Time) string {
	return t.In(Paris).Format("02/01/2006 à 15:04")
}
