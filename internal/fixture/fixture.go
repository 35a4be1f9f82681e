// Package fixture writes small event log and song catalog datasets in the
// layout the loader reads, for tests that run the pipeline end to end.
package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event is one activity log record, keyed the way the log files are.
type Event struct {
	Artist        string  `json:"artist,omitempty"`
	Auth          string  `json:"auth"`
	FirstName     string  `json:"firstName"`
	Gender        string  `json:"gender"`
	ItemInSession int     `json:"itemInSession"`
	LastName      string  `json:"lastName"`
	Length        float64 `json:"length,omitempty"`
	Level         string  `json:"level"`
	Location      string  `json:"location"`
	Method        string  `json:"method"`
	Page          string  `json:"page"`
	Registration  float64 `json:"registration"`
	SessionID     int     `json:"sessionId"`
	Song          string  `json:"song,omitempty"`
	Status        int     `json:"status"`
	TS            int64   `json:"ts"`
	UserAgent     string  `json:"userAgent"`
	// UserID is a string in the log; logged-out events carry "".
	UserID string `json:"userId"`
}

// Song is one catalog record.
type Song struct {
	NumSongs        int      `json:"num_songs"`
	ArtistID        string   `json:"artist_id"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistName      string   `json:"artist_name"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	Duration        float64  `json:"duration"`
	Year            int      `json:"year"`
}

// LogJSONPaths is the JSONPaths document for the event log, in staging
// column order.
const LogJSONPaths = `{
  "jsonpaths": [
    "$['artist']",
    "$['auth']",
    "$['firstName']",
    "$['gender']",
    "$['itemInSession']",
    "$['lastName']",
    "$['length']",
    "$['level']",
    "$['location']",
    "$['method']",
    "$['page']",
    "$['registration']",
    "$['sessionId']",
    "$['song']",
    "$['status']",
    "$['ts']",
    "$['userAgent']",
    "$['userId']"
  ]
}
`

// Millis converts t to the log's epoch-millisecond timestamp.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// Play returns a NextSong event for user at ts.
func Play(userID string, first, level string, session int, ts time.Time, artist, song string) Event {
	return Event{
		Artist:       artist,
		Auth:         "Logged In",
		FirstName:    first,
		Gender:       "F",
		LastName:     "Smith",
		Length:       200.5,
		Level:        level,
		Location:     "Portland-South Portland, ME",
		Method:       "PUT",
		Page:         "NextSong",
		Registration: 1540344794796,
		SessionID:    session,
		Song:         song,
		Status:       200,
		TS:           Millis(ts),
		UserAgent:    "Mozilla/5.0",
		UserID:       userID,
	}
}

// Layout is a dataset written under one root directory.
type Layout struct {
	Root string
}

func (l Layout) LogData() string      { return filepath.Join(l.Root, "log_data") }
func (l Layout) SongData() string     { return filepath.Join(l.Root, "song_data") }
func (l Layout) LogJSONPath() string  { return filepath.Join(l.Root, "log_json_path.json") }
func (l Layout) Path(p string) string { return filepath.Join(l.Root, p) }

// WriteJSONPaths writes LogJSONPaths to LogJSONPath.
func (l Layout) WriteJSONPaths() error {
	return writeFile(l.LogJSONPath(), []byte(LogJSONPaths))
}

// WriteEvents writes events as newline-delimited JSON to log_data/name.
func (l Layout) WriteEvents(name string, events ...Event) error {
	var b []byte
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return err
		}
		b = append(append(b, line...), '\n')
	}
	return writeFile(filepath.Join(l.LogData(), name), b)
}

// WriteSongs writes one file per song under song_data, nested the way the
// catalog is (song_data/A/B/C/TRABC....json).
func (l Layout) WriteSongs(songs ...Song) error {
	for i, s := range songs {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%03d_%s.json", i, s.SongID)
		if err := writeFile(filepath.Join(l.SongData(), "A", "B", name), b); err != nil {
			return err
		}
	}
	return nil
}

// WriteRaw writes b to a path relative to the root.
func (l Layout) WriteRaw(rel string, b []byte) error {
	return writeFile(filepath.Join(l.Root, rel), b)
}

func writeFile(p string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o644)
}

// Float returns a pointer to f, for optional coordinates.
func Float(f float64) *float64 { return &f }
