package rules

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/entry"
)

// RuleKind is the action taken for an entry.
type RuleKind int

const (
	RuleIgnore RuleKind = iota
	RuleCopyExact
	RuleCopyTo
	RuleTraverse
	RuleLogFile
)

var ruleKindToString = map[RuleKind]string{
	RuleIgnore:    "ignore",
	RuleCopyExact: "copy_exact",
	RuleCopyTo:    "copy_to",
	RuleTraverse:  "traverse",
	RuleLogFile:   "log_file",
}

func (k RuleKind) String() string {
	if s, ok := ruleKindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown_rule(%d)", int(k))
}

// Rule is the action of a file group.
type Rule struct {
	Kind     RuleKind
	Target   string        // copy_exact, copy_to, log_file
	Path     []PathElement // copy_to: destination; log_file: log file location
	FullPath bool          // log_file: write absolute instead of relative paths
}

func Ignore() Rule                 { return Rule{Kind: RuleIgnore} }
func Traverse() Rule               { return Rule{Kind: RuleTraverse} }
func CopyExact(target string) Rule { return Rule{Kind: RuleCopyExact, Target: target} }

func CopyTo(target string, path ...PathElement) Rule {
	return Rule{Kind: RuleCopyTo, Target: target, Path: path}
}

func LogFile(target string, fullPath bool, path ...PathElement) Rule {
	return Rule{Kind: RuleLogFile, Target: target, Path: path, FullPath: fullPath}
}

// UsesTarget reports whether the rule writes below a target.
func (r Rule) UsesTarget() bool {
	return r.Kind == RuleCopyExact || r.Kind == RuleCopyTo || r.Kind == RuleLogFile
}

func (r Rule) String() string {
	if r.UsesTarget() {
		return fmt.Sprintf("%s(%s)", r.Kind, r.Target)
	}
	return r.Kind.String()
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Rule.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	name, value, err := variant(node, "rule")
	if err != nil {
		return err
	}

	switch name {
	case "ignore", "traverse":
		if err := rejectValue(name, value); err != nil {
			return err
		}
		if name == "ignore" {
			*r = Ignore()
		} else {
			*r = Traverse()
		}
		return nil
	case "copy_exact", "copy_to", "log_file":
		if err := requireValue(name, value, node.Line); err != nil {
			return err
		}
	default:
		return errors.Errorf("line %d: unknown rule %q", node.Line, name)
	}

	var body struct {
		Target   string        `yaml:"target"`
		Path     []PathElement `yaml:"path"`
		LogFile  []PathElement `yaml:"log_file"`
		FullPath bool          `yaml:"full_path"`
	}
	var allowed []string
	switch name {
	case "copy_exact":
		allowed = []string{"target"}
	case "copy_to":
		allowed = []string{"target", "path"}
	default:
		allowed = []string{"target", "log_file", "full_path"}
	}
	if err := checkKeys(value, name, allowed...); err != nil {
		return err
	}
	if err := value.Decode(&body); err != nil {
		return errors.Errorf("line %d: %s: %w", value.Line, name, err)
	}
	if body.Target == "" {
		return errors.Errorf("line %d: %s requires a target", value.Line, name)
	}

	switch name {
	case "copy_exact":
		*r = CopyExact(body.Target)
	case "copy_to":
		if len(body.Path) == 0 {
			return errors.Errorf("line %d: copy_to requires a non-empty path", value.Line)
		}
		*r = CopyTo(body.Target, body.Path...)
	default:
		if len(body.LogFile) == 0 {
			return errors.Errorf("line %d: log_file requires a non-empty log_file path", value.Line)
		}
		*r = LogFile(body.Target, body.FullPath, body.LogFile...)
	}
	return nil
}

// FileGroup pairs a filter with the rule applied to what it matches.
type FileGroup struct {
	Name    string
	Sources SourceFilter
	Filter  FileFilter
	Rule    Rule
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for FileGroup.
// Name is set by the enclosing ordered mapping.
func (g *FileGroup) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if err := checkKeys(node, "file group", "sources", "filter", "rule"); err != nil {
		return err
	}
	var body struct {
		Sources *SourceFilter `yaml:"sources"`
		Filter  *FileFilter   `yaml:"filter"`
		Rule    *Rule         `yaml:"rule"`
	}
	if err := node.Decode(&body); err != nil {
		return err
	}
	switch {
	case body.Sources == nil:
		return errors.Errorf("line %d: file group is missing 'sources'", node.Line)
	case body.Filter == nil:
		return errors.Errorf("line %d: file group is missing 'filter'", node.Line)
	case body.Rule == nil:
		return errors.Errorf("line %d: file group is missing 'rule'", node.Line)
	}
	g.Sources, g.Filter, g.Rule = *body.Sources, *body.Filter, *body.Rule
	return nil
}

// Match returns the first group, in declaration order, that applies to
// source and whose filter matches fp.
func Match(groups []FileGroup, source string, fp *entry.FilePath) (*FileGroup, bool) {
	for i := range groups {
		g := &groups[i]
		if g.Sources.Includes(source) && g.Filter.Matches(fp) {
			return g, true
		}
	}
	return nil, false
}

// Resolve picks the rule for fp. Unmatched directories are traversed and
// unmatched files ignored.
func Resolve(groups []FileGroup, source string, fp *entry.FilePath) Rule {
	if g, ok := Match(groups, source, fp); ok {
		return g.Rule
	}
	if fp.IsDir() {
		return Traverse()
	}
	return Ignore()
}
