package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// session is what `login` leaves behind for the following invocations.
type session struct {
	Server  string `yaml:"server"`
	Access  string `yaml:"access"`
	Refresh string `yaml:"refresh"`
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".studentsctl.yaml"
	}

	return filepath.Join(home, ".studentsctl.yaml")
}

// loadSession returns an empty session when the file does not exist.
func loadSession(path string) (*session, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("in cmd/studentsctl/session.go/loadSession(): error while `os.ReadFile()` calling: %w", err)
	}

	s := &session{}
	if err := yaml.Unmarshal(content, s); err != nil {
		return nil, fmt.Errorf("in cmd/studentsctl/session.go/loadSession(): error while `yaml.Unmarshal()` calling: %w", err)
	}

	return s, nil
}

func saveSession(path string, s *session) error {
	content, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("in cmd/studentsctl/session.go/saveSession(): error while `yaml.Marshal()` calling: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("in cmd/studentsctl/session.go/saveSession(): error while `os.MkdirAll()` calling: %w", err)
		}
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("in cmd/studentsctl/session.go/saveSession(): error while `os.WriteFile()` calling: %w", err)
	}

	return nil
}
