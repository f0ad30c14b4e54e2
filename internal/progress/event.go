package progress

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies which pipeline produced an event.
type Kind string

// Supported pipeline kinds.
const (
	KindSearch Kind = "search"
	KindDelete Kind = "delete"
	KindList   Kind = "list"
	KindRename Kind = "rename"
)

// ParseKind validates a user supplied kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindSearch, KindDelete, KindList, KindRename:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q", raw)
	}
}

// Type is the wire discriminator of an event.
type Type string

// Event types. Every stream starts with TypeStarted and, unless the observer
// disconnects, ends with exactly one of TypeCompleted or TypeCancelled.
const (
	TypeStarted   Type = "started"
	TypeScanning  Type = "scanning"
	TypeMatching  Type = "matching"
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeCancelled Type = "cancelled"
)

// Event is one progress notification. Which fields are meaningful depends on
// Kind and Type; the constructors below build the valid combinations.
type Event struct {
	Kind Kind
	Type Type

	BasePath    string
	CurrentDir  string
	CurrentPath string

	FilesFound   int
	TotalFiles   int
	MatchesFound int
	Current      int
	Total        int
	Successful   int
	Failed       int
}

// SearchStarted opens a search stream.
func SearchStarted(basePath string) Event {
	return Event{Kind: KindSearch, Type: TypeStarted, BasePath: basePath}
}

// SearchScanning reports scan progress.
func SearchScanning(currentDir string, filesFound int) Event {
	return Event{Kind: KindSearch, Type: TypeScanning, CurrentDir: currentDir, FilesFound: filesFound}
}

// SearchMatching marks the end of the scan and the start of matching.
func SearchMatching(totalFiles int) Event {
	return Event{Kind: KindSearch, Type: TypeMatching, TotalFiles: totalFiles}
}

// SearchCompleted closes a search stream.
func SearchCompleted(matchesFound int) Event {
	return Event{Kind: KindSearch, Type: TypeCompleted, MatchesFound: matchesFound}
}

// SearchCancelled closes a cancelled search stream.
func SearchCancelled() Event {
	return Event{Kind: KindSearch, Type: TypeCancelled}
}

// DeleteStarted opens a delete stream.
func DeleteStarted(totalFiles int) Event {
	return Event{Kind: KindDelete, Type: TypeStarted, TotalFiles: totalFiles}
}

// DeleteProgress reports the target just processed (current is 1-based).
func DeleteProgress(current, total int, currentPath string) Event {
	return Event{Kind: KindDelete, Type: TypeProgress, Current: current, Total: total, CurrentPath: currentPath}
}

// DeleteCompleted closes a delete stream.
func DeleteCompleted(successful, failed int) Event {
	return Event{Kind: KindDelete, Type: TypeCompleted, Successful: successful, Failed: failed}
}

// DeleteCancelled closes a cancelled delete stream.
func DeleteCancelled() Event {
	return Event{Kind: KindDelete, Type: TypeCancelled}
}

// ListStarted opens a list stream.
func ListStarted(basePath string) Event {
	return Event{Kind: KindList, Type: TypeStarted, BasePath: basePath}
}

// ListScanning reports list progress.
func ListScanning(currentDir string, filesFound int) Event {
	return Event{Kind: KindList, Type: TypeScanning, CurrentDir: currentDir, FilesFound: filesFound}
}

// ListCompleted closes a list stream.
func ListCompleted(totalFiles int) Event {
	return Event{Kind: KindList, Type: TypeCompleted, TotalFiles: totalFiles}
}

// RenameStarted opens a rename stream.
func RenameStarted(totalFiles int) Event {
	return Event{Kind: KindRename, Type: TypeStarted, TotalFiles: totalFiles}
}

// RenameProgress reports the pair just processed, by its new path.
func RenameProgress(current, total int, currentPath string) Event {
	return Event{Kind: KindRename, Type: TypeProgress, Current: current, Total: total, CurrentPath: currentPath}
}

// RenameCompleted closes a rename stream.
func RenameCompleted(successful, failed int) Event {
	return Event{Kind: KindRename, Type: TypeCompleted, Successful: successful, Failed: failed}
}

// Terminal reports whether e ends its stream.
func (e Event) Terminal() bool {
	return e.Type == TypeCompleted || e.Type == TypeCancelled
}

// Validate checks that Type is legal for Kind and that required fields are set.
func (e Event) Validate() error {
	allowed, ok := kindTypes[e.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if _, ok := allowed[e.Type]; !ok {
		return fmt.Errorf("%s events cannot be %q", e.Kind, e.Type)
	}
	switch e.Type {
	case TypeStarted:
		if (e.Kind == KindSearch || e.Kind == KindList) && e.BasePath == "" {
			return errors.New("started requires base path")
		}
	case TypeProgress:
		if e.Current < 1 || e.Current > e.Total {
			return fmt.Errorf("progress index %d out of range 1..%d", e.Current, e.Total)
		}
	}
	if e.FilesFound < 0 || e.TotalFiles < 0 || e.MatchesFound < 0 || e.Successful < 0 || e.Failed < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}

var kindTypes = map[Kind]map[Type]struct{}{
	KindSearch: {TypeStarted: {}, TypeScanning: {}, TypeMatching: {}, TypeCompleted: {}, TypeCancelled: {}},
	KindDelete: {TypeStarted: {}, TypeProgress: {}, TypeCompleted: {}, TypeCancelled: {}},
	KindList:   {TypeStarted: {}, TypeScanning: {}, TypeCompleted: {}},
	KindRename: {TypeStarted: {}, TypeProgress: {}, TypeCompleted: {}},
}

type startedPathPayload struct {
	Type     Type   `json:"type"`
	BasePath string `json:"basePath"`
}

type totalPayload struct {
	Type       Type `json:"type"`
	TotalFiles int  `json:"totalFiles"`
}

type scanningPayload struct {
	Type       Type   `json:"type"`
	CurrentDir string `json:"currentDir"`
	FilesFound int    `json:"filesFound"`
}

type progressPayload struct {
	Type        Type   `json:"type"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	CurrentPath string `json:"currentPath"`
}

type matchesPayload struct {
	Type         Type `json:"type"`
	MatchesFound int  `json:"matchesFound"`
}

type outcomePayload struct {
	Type       Type `json:"type"`
	Successful int  `json:"successful"`
	Failed     int  `json:"failed"`
}

type bare struct {
	Type Type `json:"type"`
}

// MarshalJSON emits the variant's fields only, keyed in camelCase, with the
// discriminator under "type".
func (e Event) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Type {
	case TypeStarted:
		if e.Kind == KindSearch || e.Kind == KindList {
			payload = startedPathPayload{Type: e.Type, BasePath: e.BasePath}
		} else {
			payload = totalPayload{Type: e.Type, TotalFiles: e.TotalFiles}
		}
	case TypeScanning:
		payload = scanningPayload{Type: e.Type, CurrentDir: e.CurrentDir, FilesFound: e.FilesFound}
	case TypeMatching:
		payload = totalPayload{Type: e.Type, TotalFiles: e.TotalFiles}
	case TypeProgress:
		payload = progressPayload{Type: e.Type, Current: e.Current, Total: e.Total, CurrentPath: e.CurrentPath}
	case TypeCompleted:
		switch e.Kind {
		case KindSearch:
			payload = matchesPayload{Type: e.Type, MatchesFound: e.MatchesFound}
		case KindList:
			payload = totalPayload{Type: e.Type, TotalFiles: e.TotalFiles}
		default:
			payload = outcomePayload{Type: e.Type, Successful: e.Successful, Failed: e.Failed}
		}
	case TypeCancelled:
		payload = bare{Type: e.Type}
	default:
		return nil, fmt.Errorf("marshal progress event: unknown type %q", e.Type)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal progress event: %w", err)
	}
	return data, nil
}
