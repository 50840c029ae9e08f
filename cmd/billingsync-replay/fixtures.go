package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

var errNoFixtures = errors.New("no fixtures found")

// fixture is one notification body, delivered byte for byte.
type fixture struct {
	Name    string
	EventID string
	Payload []byte
}

// loadFixtures reads *.json files. Directories are walked in lexical order.
// A file holds either one notification object or an array of them.
func loadFixtures(paths ...string) ([]fixture, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	var out []fixture
	for _, file := range files {
		loaded, err := readFixtureFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		out = append(out, loaded...)
	}
	if len(out) == 0 {
		return nil, errNoFixtures
	}
	return out, nil
}

func readFixtureFile(path string) ([]fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	var bodies []json.RawMessage
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &bodies); err != nil {
			return nil, err
		}
	} else {
		if !json.Valid(data) {
			return nil, errors.New("invalid JSON")
		}
		bodies = []json.RawMessage{data}
	}

	name := filepath.Base(path)
	out := make([]fixture, 0, len(bodies))
	for i, body := range bodies {
		f := fixture{Name: name, EventID: eventID(body), Payload: body}
		if len(bodies) > 1 {
			f.Name = fmt.Sprintf("%s[%d]", name, i)
		}
		out = append(out, f)
	}
	return out, nil
}

// eventID reads the provider event identifier for logging only.
func eventID(body []byte) string {
	var ids struct {
		ID      string `json:"id"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &ids); err != nil {
		return ""
	}
	if ids.EventID != "" {
		return ids.EventID
	}
	return ids.ID
}

// expand repeats every fixture n times, keeping copies adjacent.
func expand(fixtures []fixture, n int) []fixture {
	out := make([]fixture, 0, len(fixtures)*n)
	for _, f := range fixtures {
		for range n {
			out = append(out, f)
		}
	}
	return out
}

func shuffle(fixtures []fixture, seed uint64) {
	r := rand.New(rand.NewPCG(seed, seed>>1|1))
	r.Shuffle(len(fixtures), func(i, j int) {
		fixtures[i], fixtures[j] = fixtures[j], fixtures[i]
	})
}
