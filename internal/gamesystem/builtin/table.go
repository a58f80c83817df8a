package builtin

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/dicebot/internal/gamesystem"
)

// TableFile is a game system defined in YAML as a set of random tables.
//
// Example:
//
//	id: WildMagic
//	name: Wild Magic Surges
//	sort_key: wild magic
//	tables:
//	  - command: WMS
//	    name: Wild Magic Surge
//	    dice: 1d4
//	    entries:
//	      - You turn blue for 1d10 days.
//	      - You cast Fireball centred on yourself.
//	      - You regain 2d10 hit points.
//	      - You teleport up to 60 feet.
type TableFile struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	SortKey string  `yaml:"sort_key"`
	Help    string  `yaml:"help"`
	Tables  []Table `yaml:"tables"`
}

// Table maps every possible result of Dice to one entry. Entries are listed
// from the lowest possible roll upwards.
type Table struct {
	Command string   `yaml:"command"`
	Name    string   `yaml:"name"`
	Dice    string   `yaml:"dice"`
	Entries []string `yaml:"entries"`
}

var (
	systemIDRe = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
	tableCmdRe = regexp.MustCompile(`^[A-Z][A-Z0-9]*$`)
	tableDice  = regexp.MustCompile(`(?i)^(\d*)d(\d+)$`)
)

// Descriptor returns the catalog entry of the file. SortKey defaults to the
// lower-cased id.
func (f *TableFile) Descriptor() gamesystem.Descriptor {
	d := gamesystem.Descriptor{ID: f.ID, SortKey: f.SortKey, Name: f.Name}
	if d.SortKey == "" {
		d.SortKey = strings.ToLower(f.ID)
	}
	if d.Name == "" {
		d.Name = f.ID
	}
	return d
}

// Validate checks the file for a usable id and well-formed tables.
func (f *TableFile) Validate() error {
	var errs []error
	if !systemIDRe.MatchString(f.ID) {
		errs = append(errs, fmt.Errorf("id %q must be non-empty and contain only letters, digits, '_' or '.'", f.ID))
	}
	if len(f.Tables) == 0 {
		errs = append(errs, errors.New("at least one table is required"))
	}
	seen := make(map[string]bool, len(f.Tables))
	for i, t := range f.Tables {
		cmd := strings.ToUpper(t.Command)
		if !tableCmdRe.MatchString(cmd) {
			errs = append(errs, fmt.Errorf("tables[%d]: command %q must start with a letter and contain only letters and digits", i, t.Command))
		}
		if seen[cmd] {
			errs = append(errs, fmt.Errorf("tables[%d]: duplicate command %q", i, t.Command))
		}
		seen[cmd] = true

		count, sides, err := tableDiceSpec(t.Dice)
		if err != nil {
			errs = append(errs, fmt.Errorf("tables[%d]: %w", i, err))
			continue
		}
		if want := count*(sides-1) + 1; len(t.Entries) != want {
			errs = append(errs, fmt.Errorf("tables[%d]: %s needs %d entries, got %d", i, t.Dice, want, len(t.Entries)))
		}
	}
	return errors.Join(errs...)
}

func tableDiceSpec(s string) (count, sides int, err error) {
	m := tableDice.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("dice %q must have the form NdS", s)
	}
	count = 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ = strconv.Atoi(m[2])
	if count < 1 || count > maxDice || sides < 1 || sides > maxSides {
		return 0, 0, fmt.Errorf("dice %q out of range", s)
	}
	return count, sides, nil
}

// LoadTableFile reads and validates a table system file.
func LoadTableFile(path string) (*TableFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("builtin: open table file %q: %w", path, err)
	}
	defer f.Close()

	tf, err := LoadTableFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("builtin: table file %q: %w", path, err)
	}
	return tf, nil
}

// LoadTableFromReader parses and validates a table system from r.
func LoadTableFromReader(r io.Reader) (*TableFile, error) {
	var tf TableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("builtin: decode table yaml: %w", err)
	}
	if err := tf.Validate(); err != nil {
		return nil, fmt.Errorf("builtin: invalid table system %q: %w", tf.ID, err)
	}
	return &tf, nil
}

// NewTableSystem builds an evaluator for a validated table file. The generic
// dice commands remain available.
func NewTableSystem(tf *TableFile, r Roller) (*System, error) {
	if err := tf.Validate(); err != nil {
		return nil, fmt.Errorf("builtin: invalid table system %q: %w", tf.ID, err)
	}

	var (
		prefixes []string
		cmds     []command
		help     strings.Builder
	)
	if tf.Help != "" {
		help.WriteString(strings.TrimSpace(tf.Help))
		help.WriteString("\n")
	}
	for _, t := range tf.Tables {
		count, sides, _ := tableDiceSpec(t.Dice)
		t.Command = strings.ToUpper(t.Command)
		if t.Name == "" {
			t.Name = t.Command
		}
		prefixes = append(prefixes, regexp.QuoteMeta(t.Command))
		cmds = append(cmds, tableCommand(t, count, sides))
		fmt.Fprintf(&help, "  %-13s %s (%s)\n", t.Command, t.Name, strings.ToUpper(t.Dice))
	}
	help.WriteString("\n")
	help.WriteString(genericHelp)

	return newSystem(tf.Descriptor(), help.String(), r, prefixes, cmds...), nil
}

func tableCommand(t Table, count, sides int) command {
	dice := &diceNode{count: count, sides: sides}
	return func(r Roller, cmd string) *gamesystem.Result {
		if cmd != t.Command {
			return nil
		}
		v, _, _ := dice.eval(r)
		return &gamesystem.Result{
			Text:     t.Name + "(" + strconv.Itoa(v) + ")" + sep + t.Entries[v-count],
			Total:    v,
			HasTotal: true,
		}
	}
}
