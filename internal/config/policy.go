package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"phishguard/internal/models"
	"phishguard/internal/reading"
)

// PolicySettings is the YAML shape of READING_POLICY_FILE. Omitted keys keep
// the defaults; an explicit 0 is honored.
type PolicySettings struct {
	Policy            string   `yaml:"policy"`
	MinSecondsPerWord *float64 `yaml:"min_seconds_per_word"`
	LowScrollPercent  *float64 `yaml:"low_scroll_percent"`
	ShortFocusRatio   *float64 `yaml:"short_focus_ratio"`
	MaxBlurCount      *int     `yaml:"max_blur_count"`
	MaxWordsPerMinute *float64 `yaml:"max_words_per_minute"`
	MinWordsPerMinute *float64 `yaml:"min_words_per_minute"`
	SlowWindowSeconds *float64 `yaml:"slow_window_seconds"`
	MinScrollEvents   *int     `yaml:"min_scroll_events"`
}

// LoadPolicyFile reads policy settings from a YAML file
func LoadPolicyFile(path string) (*PolicySettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var settings PolicySettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	return &settings, nil
}

// Apply overlays the keys present in the file onto base. Negative values are
// ignored, and the per-word threshold must stay positive.
func (s PolicySettings) Apply(base reading.Thresholds) reading.Thresholds {
	t := base
	if v := s.MinSecondsPerWord; v != nil && *v > 0 {
		t.MinSecondsPerWord = *v
	}
	overlayFloat(&t.LowScrollPercent, s.LowScrollPercent)
	overlayFloat(&t.ShortFocusRatio, s.ShortFocusRatio)
	overlayInt(&t.MaxBlurCount, s.MaxBlurCount)
	overlayFloat(&t.MaxWordsPerMinute, s.MaxWordsPerMinute)
	overlayFloat(&t.MinWordsPerMinute, s.MinWordsPerMinute)
	overlayFloat(&t.SlowWindowSeconds, s.SlowWindowSeconds)
	overlayInt(&t.MinScrollEvents, s.MinScrollEvents)
	return t
}

func overlayFloat(dst *float64, v *float64) {
	if v != nil && *v >= 0 {
		*dst = *v
	}
}

func overlayInt(dst *int, v *int) {
	if v != nil && *v >= 0 {
		*dst = *v
	}
}

// PolicyStore holds the live evaluation policy. Readers always see a
// complete policy; reloads swap it atomically.
type PolicyStore struct {
	mu         sync.RWMutex
	name       string
	thresholds reading.Thresholds
	policy     reading.Policy

	base      reading.Thresholds
	baseName  string
	file      string
	listeners []func(reading.Policy, reading.Thresholds)
}

// NewPolicyStore builds the store from config and loads the policy file if set
func NewPolicyStore(cfg *Config) (*PolicyStore, error) {
	s := &PolicyStore{
		base:     cfg.Thresholds(),
		baseName: cfg.Reading.Policy,
		file:     cfg.Reading.PolicyFile,
	}
	if err := s.set(s.baseName, s.base); err != nil {
		log.Printf("⚠️  [POLICY] %v, falling back to %s", err, reading.PolicyCorroborated)
	}
	if s.file != "" {
		if err := s.Reload(); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s *PolicyStore) set(name string, t reading.Thresholds) error {
	p, err := reading.NewPolicy(name, t)

	s.mu.Lock()
	s.name = p.Name()
	s.thresholds = t
	s.policy = p
	listeners := append([]func(reading.Policy, reading.Thresholds){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(p, t)
	}
	return err
}

// Reload re-reads the policy file. On failure the current policy stays.
func (s *PolicyStore) Reload() error {
	if s.file == "" {
		return nil
	}
	settings, err := LoadPolicyFile(s.file)
	if err != nil {
		return err
	}

	name := s.baseName
	if settings.Policy != "" {
		name = settings.Policy
	}
	thresholds := settings.Apply(s.base)

	if err := s.set(name, thresholds); err != nil {
		if errors.Is(err, reading.ErrUnknownPolicy) {
			log.Printf("⚠️  [POLICY] %v in %s, using %s", err, s.file, reading.PolicyCorroborated)
			return nil
		}
		return err
	}
	return nil
}

// Current returns the live policy and its thresholds
func (s *PolicyStore) Current() (reading.Policy, reading.Thresholds) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, s.thresholds
}

// OnChange registers fn to run after every successful swap
func (s *PolicyStore) OnChange(fn func(reading.Policy, reading.Thresholds)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Info describes the live policy for clients that evaluate locally
func (s *PolicyStore) Info() models.ReadingPolicyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.thresholds
	return models.ReadingPolicyInfo{
		Policy:            s.name,
		MinSecondsPerWord: t.MinSecondsPerWord,
		LowScrollPercent:  t.LowScrollPercent,
		ShortFocusRatio:   t.ShortFocusRatio,
		MaxBlurCount:      t.MaxBlurCount,
		MaxWordsPerMinute: t.MaxWordsPerMinute,
		MinWordsPerMinute: t.MinWordsPerMinute,
		SlowWindowSeconds: t.SlowWindowSeconds,
		MinScrollEvents:   t.MinScrollEvents,
	}
}

// Watch reloads the policy file whenever it changes, until ctx is done
func (s *PolicyStore) Watch(ctx context.Context) error {
	if s.file == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(s.file)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to get absolute path for %s: %w", s.file, err)
	}

	// Watch the directory: editors replace files instead of writing in place
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	log.Printf("👁️  [POLICY] Watching %s for changes (hot-reload enabled)", s.file)

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		debounceDuration := 500 * time.Millisecond

		for {
			select {
			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := s.Reload(); err != nil {
						log.Printf("❌ [POLICY] Failed to reload %s: %v", s.file, err)
						return
					}
					info := s.Info()
					log.Printf("✅ [POLICY] Reloaded %s: policy=%s minSecondsPerWord=%.2f", s.file, info.Policy, info.MinSecondsPerWord)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  [POLICY] File watcher error: %v", err)
			}
		}
	}()

	return nil
}
