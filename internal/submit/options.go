package submit

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const (
	optionsFileName = ".submit_options"
	optionsLockName = ".submit_options.lock"
)

var validMailTypes = map[string]bool{"begin": true, "end": true, "fail": true}

// Options are the user-supplied submission flags that must survive across
// process boundaries: a batch-scheduled resubmission happens in a fresh
// process and must behave as if the user had passed the original flags again.
type Options struct {
	SkipPreviewNamelist bool     `yaml:"skip_pnl,omitempty"`
	MailUser            string   `yaml:"mail_user,omitempty"`
	MailTypes           []string `yaml:"mail_type,omitempty"`
	BatchArgs           string   `yaml:"batch_args,omitempty"`
}

// IsZero reports whether every option is at its default.
func (o Options) IsZero() bool {
	return !o.SkipPreviewNamelist && o.MailUser == "" && len(o.MailTypes) == 0 && o.BatchArgs == ""
}

// Validate checks the mail-event set.
func (o Options) Validate() error {
	for _, t := range o.MailTypes {
		if !validMailTypes[t] {
			return fmt.Errorf("invalid mail type %q (want begin, end, or fail)", t)
		}
	}
	return nil
}

// MergeUnder fills o's unset fields from persisted. Explicitly supplied
// values always win; persisted ones only surface where the caller said
// nothing.
func (o Options) MergeUnder(persisted Options) Options {
	merged := o
	// mergo only writes into zero-valued destination fields, which is
	// exactly the explicit-wins contract.
	_ = mergo.Merge(&merged, persisted)
	return merged
}

// OptionsStore persists one Options record per case directory. The case owns
// the record exclusively; the store assumes the case's single-writer
// discipline and only guards the write path against accidental concurrent
// invocations with a file lock.
type OptionsStore struct {
	caseDir string
}

// NewOptionsStore returns the store rooted at a case directory.
func NewOptionsStore(caseDir string) *OptionsStore {
	return &OptionsStore{caseDir: caseDir}
}

func (s *OptionsStore) path() string { return filepath.Join(s.caseDir, optionsFileName) }

// Save writes the record, but only when at least one option is non-default;
// saving all-default options is a no-op so the durable state stays identical.
// Saving the same options twice produces the same bytes.
func (s *OptionsStore) Save(opts Options) error {
	if opts.IsZero() {
		return nil
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(s.caseDir, optionsLockName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock submit options: %w", err)
	}
	defer lock.Unlock()

	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal submit options: %w", err)
	}
	if err := os.WriteFile(s.path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write submit options: %w", err)
	}
	return nil
}

// Load returns the persisted options, or the empty set when none were saved.
func (s *OptionsStore) Load() (Options, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return Options{}, nil
	}
	if err != nil {
		return Options{}, fmt.Errorf("failed to read submit options: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse submit options: %w", err)
	}
	return opts, nil
}

// Clear removes the record. Clearing an absent record is not an error, so
// clear-then-load always yields the empty set.
func (s *OptionsStore) Clear() error {
	lock := flock.New(filepath.Join(s.caseDir, optionsLockName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock submit options: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove submit options: %w", err)
	}
	return nil
}
