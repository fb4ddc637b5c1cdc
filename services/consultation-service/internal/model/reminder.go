package model

import "time"

type ReminderKind string

const ReminderOneHourBefore ReminderKind = "one_hour_before"

type Reminder struct {
	ID          int64
	BookingID   string
	Kind        ReminderKind
	ScheduledAt time.Time
	Sent        bool
	SentAt      *time.Time
}

// DueReminder is a claimed reminder with what is needed to deliver it.
type DueReminder struct {
	Reminder
	Booking   Booking
	GuruEmail string
}
