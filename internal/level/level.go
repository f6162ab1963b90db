// Package level defines puzzles and loads them from YAML.
package level

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/oracle/internal/harness"
)

// Difficulty grades a level.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
	Expert       Difficulty = "expert"
	Master       Difficulty = "master"
)

var difficultyStars = map[Difficulty]int{
	Beginner: 1, Intermediate: 2, Advanced: 3, Expert: 4, Master: 5,
}

// Stars renders the difficulty as 1 to 5 stars.
func (d Difficulty) Stars() string {
	return strings.Repeat("*", difficultyStars[d])
}

// TestCase is one hidden input/expected-output pair. Inputs are passed to
// the target function as string arguments, in order.
type TestCase struct {
	Inputs         []string `yaml:"inputs" json:"inputs"`
	ExpectedOutput string   `yaml:"expected_output" json:"expected_output"`
}

// Level is one puzzle.
type Level struct {
	ID           string     `yaml:"id" json:"id"`
	Number       int        `yaml:"number" json:"number"`
	Title        string     `yaml:"title" json:"title"`
	Difficulty   Difficulty `yaml:"difficulty" json:"difficulty"`
	Concept      string     `yaml:"concept" json:"concept"`
	Story        string     `yaml:"story" json:"story"`
	OracleSays   string     `yaml:"oracle_says" json:"oracle_says"`
	Description  string     `yaml:"description" json:"description"`
	FunctionName string     `yaml:"function_name" json:"function_name"`
	Example      string     `yaml:"example" json:"example"`
	Starter      string     `yaml:"starter" json:"starter,omitempty"`
	TestCases    []TestCase `yaml:"test_cases" json:"test_cases"`
	Hints        []string   `yaml:"hints" json:"hints"`
	Solution     string     `yaml:"solution" json:"-"`
	XPReward     int        `yaml:"xp_reward" json:"xp_reward"`
	ManaReward   int        `yaml:"mana_reward" json:"mana_reward"`
}

// Validate checks that the level can be evaluated.
func (l *Level) Validate() error {
	switch {
	case l.ID == "":
		return errors.New("missing id")
	case l.Number <= 0:
		return fmt.Errorf("level %s: number must be positive", l.ID)
	case !harness.ValidFunctionName(l.FunctionName):
		return fmt.Errorf("level %s: invalid function name %q", l.ID, l.FunctionName)
	case len(l.TestCases) == 0:
		return fmt.Errorf("level %s: no test cases", l.ID)
	}
	if _, ok := difficultyStars[l.Difficulty]; !ok {
		return fmt.Errorf("level %s: unknown difficulty %q", l.ID, l.Difficulty)
	}
	return nil
}

// StarterCode returns code a player starts from: the explicit starter or a stub
// with the right function name.
func (l *Level) StarterCode() string {
	if l.Starter != "" {
		return l.Starter
	}
	return fmt.Sprintf("def %s():\n    pass\n", l.FunctionName)
}

// Parse decodes one level from YAML and validates it.
func Parse(data []byte) (*Level, error) {
	var l Level
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

var (
	ErrNotFound  = errors.New("level not found")
	ErrAmbiguous = errors.New("level reference is ambiguous")
)

// Catalog is an ordered, read-only set of levels.
type Catalog struct {
	levels []*Level
	byID   map[string]*Level
}

// NewCatalog builds a catalog, rejecting duplicate ids and numbers.
func NewCatalog(levels ...*Level) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Level, len(levels))}
	numbers := make(map[int]string, len(levels))
	for _, l := range levels {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate level id %q", l.ID)
		}
		if other, dup := numbers[l.Number]; dup {
			return nil, fmt.Errorf("levels %q and %q share number %d", other, l.ID, l.Number)
		}
		numbers[l.Number] = l.ID
		c.byID[l.ID] = l
		c.levels = append(c.levels, l)
	}
	sort.Slice(c.levels, func(i, j int) bool { return c.levels[i].Number < c.levels[j].Number })
	return c, nil
}

// Load reads every *.yaml and *.yml file at the root of fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing levels: %w", err)
	}
	var levels []*Level
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading level %s: %w", e.Name(), err)
		}
		l, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing level %s: %w", e.Name(), err)
		}
		levels = append(levels, l)
	}
	if len(levels) == 0 {
		return nil, errors.New("no levels found")
	}
	return NewCatalog(levels...)
}

// LoadDir reads levels from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// All returns levels ordered by number.
func (c *Catalog) All() []*Level {
	return c.levels
}

// Get finds a level by id, number, or unique id prefix.
func (c *Catalog) Get(ref string) (*Level, error) {
	ref = strings.TrimSpace(ref)
	if l, ok := c.byID[ref]; ok {
		return l, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		for _, l := range c.levels {
			if l.Number == n {
				return l, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	var match *Level
	for _, l := range c.levels {
		if ref != "" && strings.HasPrefix(l.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguous, ref)
			}
			match = l
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return match, nil
}

// Next returns the first level numbered after n, or nil.
func (c *Catalog) Next(n int) *Level {
	for _, l := range c.levels {
		if l.Number > n {
			return l
		}
	}
	return nil
}
