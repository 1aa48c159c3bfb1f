package directory

import "time"

// Account is an automated posting identity.
type Account struct {
	ID      string
	Name    string
	CanPost bool
}

// Group is a destination the accounts post into. ChatID is the transport
// address (Telegram chat id). LastPostAt is informational only; eligibility
// is owned by the groupstate coordinator, not the directory.
type Group struct {
	ID         string
	ChatID     int64
	Title      string
	LastPostAt *time.Time
}

// TextVariant is one interchangeable wording of a template.
type TextVariant struct {
	ID   string
	Body string
}

// Template is a reusable content blueprint with bounds on attached media.
type Template struct {
	ID       string
	MinMedia int
	MaxMedia int
	Variants []TextVariant
}

// Media is an attachable item. FileRef is a transport-level reference
// (Telegram file id or URL).
type Media struct {
	ID      string
	FileRef string
}
