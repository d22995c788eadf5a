package midb

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedFolder is one account/folder's fixture data: a flag set per message,
// in append order, the way a YAML-described mailbox test fixture reads more
// naturally than a long hand-built sequence of Append calls.
type SeedFolder struct {
	Account  string    `yaml:"account"`
	Folder   string    `yaml:"folder"`
	Messages []SeedMsg `yaml:"messages"`
}

// SeedMsg is one fixture message: its raw RFC 5322 bytes and flag names
// ("\\Seen", "\\Flagged", ...), matched exactly
// and case-sensitively (imapcore/flags.go's STORE flag parsing, by
// contrast, ignores case).
type SeedMsg struct {
	Raw   string   `yaml:"raw"`
	Flags []string `yaml:"flags"`
}

// LoadSeed parses a YAML document of one or more SeedFolder entries and
// appends every message into idx, in file order. Intended for test setup:
// a fixture describes a mailbox's starting contents once, instead of each
// test hand-assembling it via repeated Append calls.
func LoadSeed(ctx context.Context, idx *MemIndex, data []byte) error {
	var folders []SeedFolder
	if err := yaml.Unmarshal(data, &folders); err != nil {
		return fmt.Errorf("midb: parsing seed fixture: %w", err)
	}

	for _, f := range folders {
		if err := idx.EnsureFolder(ctx, f.Account, f.Folder); err != nil {
			return fmt.Errorf("midb: seeding %s/%s: %w", f.Account, f.Folder, err)
		}
		for _, m := range f.Messages {
			flags, err := parseFlagNames(m.Flags)
			if err != nil {
				return fmt.Errorf("midb: seeding %s/%s: %w", f.Account, f.Folder, err)
			}
			if _, err := idx.Append(ctx, f.Account, f.Folder, []byte(m.Raw), flags, time.Time{}); err != nil {
				return fmt.Errorf("midb: seeding %s/%s: %w", f.Account, f.Folder, err)
			}
		}
	}
	return nil
}

func parseFlagNames(names []string) (Flags, error) {
	var flags Flags
	for _, name := range names {
		switch name {
		case `\Answered`:
			flags |= FlagAnswered
		case `\Flagged`:
			flags |= FlagFlagged
		case `\Deleted`:
			flags |= FlagDeleted
		case `\Seen`:
			flags |= FlagSeen
		case `\Draft`:
			flags |= FlagDraft
		default:
			return 0, fmt.Errorf("unknown flag %q", name)
		}
	}
	return flags, nil
}
