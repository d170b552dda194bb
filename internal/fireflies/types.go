package fireflies

// Transcript is a call-transcript record as returned by the Fireflies
// GraphQL API. Immutable once fetched.
type Transcript struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Date         float64  `json:"date"`     // epoch milliseconds
	Duration     float64  `json:"duration"` // seconds
	Participants []string `json:"participants"`
	Summary      *Summary `json:"summary"`
}

// Summary holds the structured summary Fireflies produces once a transcript
// has finished processing. All fields may be empty while processing is
// still pending.
type Summary struct {
	Overview        string   `json:"overview"`
	ShorthandBullet string   `json:"shorthand_bullet"`
	Outline         string   `json:"outline"`
	ActionItems     []string `json:"action_items"`
	Keywords        []string `json:"keywords"`
}

// User identifies the authenticated Fireflies account.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ConnectionStatus is the result of a connectivity probe.
type ConnectionStatus struct {
	Status string `json:"status"`
	User   *User  `json:"user,omitempty"`
	Error  string `json:"error,omitempty"`
}
