package notify

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

const (
	KindReminder  = "reminder"
	KindConfirmed = "confirmed"
	KindCancelled = "cancelled"
)

const timeLayout = "Mon 02 Jan 2006 15:04 MST"

func when(b model.Booking) string {
	return b.Start.UTC().Format(timeLayout) + " - " + b.End.UTC().Format("15:04 MST")
}

func meetingLine(b model.Booking) string {
	if b.MeetingLocator == "" {
		return ""
	}
	return "\nJoin: " + b.MeetingLocator
}

// ReminderMessages addresses both participants of an upcoming consultation.
func ReminderMessages(b model.Booking, guruEmail string, lead time.Duration) []Message {
	body := fmt.Sprintf("Your consultation starts in %s.\nWhen: %s%s\n", lead, when(b), meetingLine(b))
	return participants(b, guruEmail, "Reminder: consultation at "+b.Start.UTC().Format("15:04 MST"), body)
}

func ConfirmedMessages(b model.Booking, guruEmail string) []Message {
	body := fmt.Sprintf("Your consultation is confirmed.\nWhen: %s%s\n", when(b), meetingLine(b))
	return participants(b, guruEmail, "Consultation confirmed", body)
}

func CancelledMessages(b model.Booking, guruEmail string, refunded bool) []Message {
	body := fmt.Sprintf("The consultation on %s was cancelled.\n", when(b))
	if refunded {
		body += "The payment has been refunded.\n"
	}
	return participants(b, guruEmail, "Consultation cancelled", body)
}

func participants(b model.Booking, guruEmail, subject, body string) []Message {
	var out []Message
	for _, to := range []string{b.RequesterEmail, guruEmail} {
		if to == "" {
			continue
		}
		out = append(out, Message{To: to, Subject: subject, Body: body})
	}
	return out
}
