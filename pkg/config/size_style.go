package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// FileSizeStyle selects the unit base used when displaying byte counts.
type FileSizeStyle string

const (
	Binary  FileSizeStyle = "binary"  // 1024, KiB
	Decimal FileSizeStyle = "decimal" // 1000, kB
)

var fileSizeStyleToString = map[FileSizeStyle]string{
	Binary:  "binary",
	Decimal: "decimal",
}

var stringToFileSizeStyle map[string]FileSizeStyle

func init() {
	stringToFileSizeStyle = util.InvertMap(fileSizeStyleToString)
}

func (s FileSizeStyle) String() string {
	if str, ok := fileSizeStyleToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_file_size_style(%s)", string(s))
}

func ParseFileSizeStyle(s string) (FileSizeStyle, error) {
	if style, ok := stringToFileSizeStyle[s]; ok {
		return style, nil
	}
	return "", errors.Errorf("invalid file_size_style %q: must be 'binary' or 'decimal'", s)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for FileSizeStyle.
func (s *FileSizeStyle) UnmarshalYAML(node *yaml.Node) error {
	var str string
	if err := node.Decode(&str); err != nil {
		return errors.Errorf("line %d: file_size_style should be a string: %w", node.Line, err)
	}
	style, err := ParseFileSizeStyle(str)
	if err != nil {
		return errors.Errorf("line %d: %w", node.Line, err)
	}
	*s = style
	return nil
}

// Format renders n bytes in the style's units.
func (s FileSizeStyle) Format(n uint64) string {
	if s == Decimal {
		return humanize.Bytes(n)
	}
	return humanize.IBytes(n)
}
