package models

const SnapshotVersion = 1

// Snapshot is the on-disk image of the in-memory store plus aggregated scan stats.
type Snapshot struct {
	Version       int                    `json:"version"`
	Profiles      []*Profile             `json:"profiles"`
	Conversations []*Conversation        `json:"conversations"`
	Messages      []*Message             `json:"messages"`
	ScanStats     map[string]*ScanRecord `json:"scanStats,omitempty"`
	ScanScanners  map[string][]byte      `json:"scanScanners,omitempty"`
	ScanNotFound  uint64                 `json:"scanNotFound,omitempty"`
}
