// Package lensmsg defines the wire format of the events pushed by the
// RepoLens backend over the persistent /events connection.
package lensmsg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/repolens/repolens/internal/utils"
)

const idSize = 4

// Event is a single message on the push connection. Data is decoded into
// the payload type matching Kind.
type Event struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Data any    `json:"data,omitempty"`
}

// System is sent by the server right after a connection is accepted.
type System struct {
	ServerVersion string `json:"server_version"`
	WatcherActive bool   `json:"watcher_active"`
}

// RescanStarted announces that a full scan of the repository began.
type RescanStarted struct {
	ScanID string `json:"scan_id"`
}

// RescanCompleted announces that a full scan finished and carries the
// resulting index size.
type RescanCompleted struct {
	ScanID       string        `json:"scan_id"`
	FilesIndexed int           `json:"files_indexed"`
	Duration     time.Duration `json:"duration_ns"`
}

// FileChanged announces a single file change picked up by the watcher.
type FileChanged struct {
	Path string `json:"path"`
	Op   string `json:"op"` // "write", "create", "remove", "rename"
}

// SettingsChanged announces that backend settings were updated.
type SettingsChanged struct{}

// UnmarshalJSON decodes the envelope and then the payload according to Kind.
// An unknown kind or a payload that does not decode is an error; callers are
// expected to drop such events rather than tear the connection down.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   string          `json:"id"`
		Kind Kind            `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ID = raw.ID
	e.Kind = raw.Kind

	decode := func(v any) error {
		if len(raw.Data) == 0 {
			return fmt.Errorf("event %s: missing payload", raw.Kind)
		}
		return json.Unmarshal(raw.Data, v)
	}

	switch raw.Kind {
	case KindSystem:
		var sys System
		if err := decode(&sys); err != nil {
			return err
		}
		e.Data = sys
	case KindRescanStarted:
		var rs RescanStarted
		if err := decode(&rs); err != nil {
			return err
		}
		e.Data = rs
	case KindRescanCompleted:
		var rc RescanCompleted
		if err := decode(&rc); err != nil {
			return err
		}
		e.Data = rc
	case KindFileChanged:
		var fc FileChanged
		if err := decode(&fc); err != nil {
			return err
		}
		e.Data = fc
	case KindSettingsChanged:
		e.Data = SettingsChanged{}
	default:
		return fmt.Errorf("unknown event kind: %q", raw.Kind)
	}

	return nil
}

func NewSystemEvent(serverVersion string, watcherActive bool) *Event {
	return &Event{
		ID:   utils.TokenHex(idSize),
		Kind: KindSystem,
		Data: System{ServerVersion: serverVersion, WatcherActive: watcherActive},
	}
}

func NewRescanStartedEvent(scanID string) *Event {
	return &Event{
		ID:   utils.TokenHex(idSize),
		Kind: KindRescanStarted,
		Data: RescanStarted{ScanID: scanID},
	}
}

func NewRescanCompletedEvent(scanID string, filesIndexed int, duration time.Duration) *Event {
	return &Event{
		ID:   utils.TokenHex(idSize),
		Kind: KindRescanCompleted,
		Data: RescanCompleted{ScanID: scanID, FilesIndexed: filesIndexed, Duration: duration},
	}
}

func NewFileChangedEvent(path, op string) *Event {
	return &Event{
		ID:   utils.TokenHex(idSize),
		Kind: KindFileChanged,
		Data: FileChanged{Path: path, Op: op},
	}
}

func NewSettingsChangedEvent() *Event {
	return &Event{
		ID:   utils.TokenHex(idSize),
		Kind: KindSettingsChanged,
		Data: SettingsChanged{},
	}
}
