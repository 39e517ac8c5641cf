package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// historyLines bounds the JSONL history per bridge so the data
// directory does not grow without limit.
const historyLines = 500

// StatusFile writes the latest payload per bridge as a JSON file and
// appends every payload to a bounded JSONL history. Desktop widgets and
// menu-bar apps poll these files.
type StatusFile struct {
	Dir string
}

func NewStatusFile(dir string) *StatusFile {
	return &StatusFile{Dir: dir}
}

func (s *StatusFile) Name() string { return "statusfile" }

func (s *StatusFile) Notify(_ context.Context, p Payload) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating status directory: %w", err)
	}

	latest, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	latestPath := filepath.Join(s.Dir, fmt.Sprintf("status-%s.json", p.Bridge))
	if err := os.WriteFile(latestPath, append(latest, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing latest status: %w", err)
	}

	return s.appendHistory(p)
}

func (s *StatusFile) historyPath(bridge string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("history-%s.jsonl", bridge))
}

func (s *StatusFile) appendHistory(p Payload) error {
	line, err := json.Marshal(p)
	if err != nil {
		return err
	}

	path := s.historyPath(p.Bridge)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("appending history: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return s.trimHistory(path)
}

// trimHistory rewrites the file keeping only the newest entries once it
// exceeds the line bound.
func (s *StatusFile) trimHistory(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	f.Close()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scanning history: %w", err)
	}

	if len(lines) <= historyLines {
		return nil
	}
	keep := lines[len(lines)-historyLines:]

	var buf []byte
	for _, l := range keep {
		buf = append(buf, l...)
		buf = append(buf, '\n')
	}
	return os.WriteFile(path, buf, 0o644)
}

// History reads back the stored payloads for a bridge, oldest first.
func (s *StatusFile) History(bridge string) ([]Payload, error) {
	f, err := os.Open(s.historyPath(bridge))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Payload
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var p Payload
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			continue // tolerate a torn line
		}
		out = append(out, p)
	}
	return out, sc.Err()
}
