package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fieldops/fieldops/internal/assignment"
)

// ReloadDebounce is the delay after a filesystem event before the policy
// file is read again.
const ReloadDebounce = 200 * time.Millisecond

// PolicyStore holds the active policy. With a file path it can follow
// changes to that file.
type PolicyStore struct {
	path string

	mu     sync.RWMutex
	policy *Policy
}

// NewPolicyStore loads the policy from path, or uses DefaultPolicy when path
// is empty.
func NewPolicyStore(path string) (*PolicyStore, error) {
	s := &PolicyStore{path: path, policy: DefaultPolicy()}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewStaticPolicyStore(p *Policy) *PolicyStore {
	return &PolicyStore{policy: p}
}

func (s *PolicyStore) Current() *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *PolicyStore) NegotiationRules(countryCode string) assignment.NegotiationRules {
	return s.Current().NegotiationRules(countryCode)
}

// Reload reads the policy file. On error the previous policy stays active.
func (s *PolicyStore) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read dispatch policy %s: %w", s.path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	return nil
}

// Watch reloads the policy whenever the file is written or replaced, until
// ctx is done. It watches the parent directory so atomic renames are seen.
func (s *PolicyStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	name := filepath.Base(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	slog.InfoContext(ctx, "watching dispatch policy", "path", s.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(ReloadDebounce, func() {
				if err := s.Reload(); err != nil {
					slog.ErrorContext(ctx, "dispatch policy reload failed, keeping previous policy", "path", s.path, "error", err)
					return
				}
				slog.InfoContext(ctx, "dispatch policy reloaded", "path", s.path)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "fsnotify error", "error", err)
		}
	}
}
