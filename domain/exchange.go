package domain

import "time"

// Exchange is one question a participant put to the assistant and the reply
// they got. Exchanges are keyed by the asker's identity, which survives
// reconnects.
type Exchange struct {
	Identity string
	Prompt   string
	Reply    string
	At       time.Time
}
