package models

// PresenceRecord is the stored presence state for one user. The Online
// flag is advisory only: it can be stuck true after an uncommunicated
// disconnect, so readers must compare LastSeen against a staleness bound
// before trusting it.
type PresenceRecord struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"last_seen"` // unix ms
}
