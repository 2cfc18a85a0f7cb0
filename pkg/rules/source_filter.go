package rules

import (
	"fmt"
	"slices"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// SourceFilterKind selects which sources a file group applies to.
type SourceFilterKind int

const (
	SourcesAll SourceFilterKind = iota
	SourcesExcept
	SourcesOnly
)

// SourceFilter restricts a file group to a set of source names.
type SourceFilter struct {
	Kind  SourceFilterKind
	Names []string
}

func AllSources() SourceFilter                   { return SourceFilter{Kind: SourcesAll} }
func ExceptSources(names ...string) SourceFilter { return SourceFilter{Kind: SourcesExcept, Names: names} }
func OnlySources(names ...string) SourceFilter   { return SourceFilter{Kind: SourcesOnly, Names: names} }

// Includes reports whether the group applies to source.
func (s SourceFilter) Includes(source string) bool {
	switch s.Kind {
	case SourcesExcept:
		return !slices.Contains(s.Names, source)
	case SourcesOnly:
		return slices.Contains(s.Names, source)
	default:
		return true
	}
}

func (s SourceFilter) String() string {
	switch s.Kind {
	case SourcesExcept:
		return fmt.Sprintf("except(%s)", strings.Join(s.Names, ", "))
	case SourcesOnly:
		return fmt.Sprintf("only(%s)", strings.Join(s.Names, ", "))
	default:
		return "all"
	}
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for SourceFilter.
func (s *SourceFilter) UnmarshalYAML(node *yaml.Node) error {
	name, value, err := variant(node, "source filter")
	if err != nil {
		return err
	}
	switch name {
	case "all":
		if err := rejectValue(name, value); err != nil {
			return err
		}
		*s = AllSources()
		return nil
	case "except", "only":
		if err := requireValue(name, value, node.Line); err != nil {
			return err
		}
		var names []string
		if err := value.Decode(&names); err != nil {
			return errors.Errorf("line %d: %s must be a list of source names: %w", value.Line, name, err)
		}
		if name == "except" {
			*s = ExceptSources(names...)
		} else {
			*s = OnlySources(names...)
		}
		return nil
	default:
		return errors.Errorf("line %d: unknown source filter %q, expected all, except or only", node.Line, name)
	}
}
