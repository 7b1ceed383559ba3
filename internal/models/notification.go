package models

import "time"

type Notification struct {
	ChatID       string
	HomeworkName string
	Status       Status
	Message      string
	SentAt       time.Time
}
