package client

import "time"

type Association struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Association Association `json:"association"`
}

type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Total     int       `json:"total"`
	Version   int64     `json:"version"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Summary struct {
	Events    int `json:"events"`
	Upcoming  int `json:"upcoming"`
	Active    int `json:"active"`
	Past      int `json:"past"`
	Attendees int `json:"attendees"`
}

type TapResult struct {
	Total     int       `json:"total"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type Tap struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

type Bucket struct {
	Label   string    `json:"label"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Entries int       `json:"entries"`
	Exits   int       `json:"exits"`
	Net     int       `json:"net"`
}

type Report struct {
	Event    Event    `json:"event"`
	Interval string   `json:"interval"`
	Buckets  []Bucket `json:"buckets"`
	Total    int      `json:"total"`
}
