package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Defaults for the managed Chrome policy resource.
const (
	DefaultChromePolicyPath = "/etc/opt/chrome/policies/managed/holdover.json"
	DefaultChromePolicyKey  = "WebRtcIPHandling"
)

// ChromePolicy stores the value under one key of a managed-policy JSON
// document. Other keys in the document are preserved.
//
// A missing file or key reads as DefaultMode, and writing DefaultMode removes
// the key, which is how the browser itself treats an unset policy.
type ChromePolicy struct {
	path string
	key  string
	mu   sync.Mutex
}

// NewChromePolicy returns a resource over the document at path.
func NewChromePolicy(path, key string) *ChromePolicy {
	if path == "" {
		path = DefaultChromePolicyPath
	}
	if key == "" {
		key = DefaultChromePolicyKey
	}
	return &ChromePolicy{path: path, key: key}
}

func (c *ChromePolicy) Describe() string {
	return fmt.Sprintf("chrome_policy %s#%s", c.path, c.key)
}

func (c *ChromePolicy) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.read()
	if err != nil {
		return "", err
	}
	raw, ok := doc[c.key]
	if !ok {
		return DefaultMode, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("policy %s is not a string: %w", c.key, err)
	}
	return value, nil
}

func (c *ChromePolicy) Set(ctx context.Context, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.read()
	if err != nil {
		return err
	}
	if value == DefaultMode {
		delete(doc, c.key)
	} else {
		raw, _ := json.Marshal(value)
		doc[c.key] = raw
	}
	return c.write(doc)
}

func (c *ChromePolicy) read() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.path, err)
	}
	return doc, nil
}

// write replaces the document via a temp file and rename so a reader never
// sees a half-written policy.
func (c *ChromePolicy) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".holdover-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace %s: %w", c.path, err)
	}
	return nil
}
