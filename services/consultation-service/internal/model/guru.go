package model

import "time"

// Guru is the read-only profile data the engine needs about a mentor.
type Guru struct {
	ID            string
	Email         string
	Timezone      string
	PricePer30Min int64
	Currency      string
	UpdatedAt     time.Time
}
