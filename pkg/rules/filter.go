package rules

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/entry"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// FilterKind selects the predicate a FileFilter evaluates.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterAny
	FilterNot
	FilterCatchAll
	FilterHasExtension
	FilterFileNameMatchesRegex
	FilterPathMatchesRegex
	FilterPathMatchesGlob
	FilterInRootPath
	FilterImmediateParent
	FilterIsFile
	FilterIsDir
	FilterHasImageMetadata
	FilterHasImageDateTime
	FilterImgSize
)

var filterKindToString = map[FilterKind]string{
	FilterAll:                  "all",
	FilterAny:                  "any",
	FilterNot:                  "not",
	FilterCatchAll:             "catch_all",
	FilterHasExtension:         "has_extension",
	FilterFileNameMatchesRegex: "file_name_matches_regex",
	FilterPathMatchesRegex:     "path_matches_regex",
	FilterPathMatchesGlob:      "path_matches_glob",
	FilterInRootPath:           "in_folder",
	FilterImmediateParent:      "directly_in_folder",
	FilterIsFile:               "is_file",
	FilterIsDir:                "is_dir",
	FilterHasImageMetadata:     "has_img_metadata",
	FilterHasImageDateTime:     "has_img_date_time",
	FilterImgSize:              "img_size",
}

var stringToFilterKind map[string]FilterKind

func init() {
	stringToFilterKind = util.InvertMap(filterKindToString)
}

func (k FilterKind) String() string {
	if s, ok := filterKindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown_filter(%d)", int(k))
}

// FileFilter is a boolean predicate over a FilePath. Only the fields of its
// Kind are set.
type FileFilter struct {
	Kind FilterKind

	Children   []FileFilter // all, any
	Inner      *FileFilter  // not
	Extensions []string     // has_extension
	Folder     string       // in_folder, directly_in_folder; host separators
	Pattern    string       // regex or glob source
	Min, Max   *uint32      // img_size

	re *regexp.Regexp
}

func All(children ...FileFilter) FileFilter { return FileFilter{Kind: FilterAll, Children: children} }
func Any(children ...FileFilter) FileFilter { return FileFilter{Kind: FilterAny, Children: children} }
func Not(inner FileFilter) FileFilter       { return FileFilter{Kind: FilterNot, Inner: &inner} }
func CatchAll() FileFilter                  { return FileFilter{Kind: FilterCatchAll} }
func IsFile() FileFilter                    { return FileFilter{Kind: FilterIsFile} }
func IsDir() FileFilter                     { return FileFilter{Kind: FilterIsDir} }
func HasImageMetadata() FileFilter          { return FileFilter{Kind: FilterHasImageMetadata} }
func HasImageDateTime() FileFilter          { return FileFilter{Kind: FilterHasImageDateTime} }

func HasExtension(exts ...string) FileFilter {
	return FileFilter{Kind: FilterHasExtension, Extensions: exts}
}

// InRootPath matches entries below folder, given with forward slashes.
func InRootPath(folder string) FileFilter {
	return FileFilter{Kind: FilterInRootPath, Folder: util.DenormalizePath(strings.TrimSuffix(folder, "/"))}
}

// ImmediateParent matches entries whose parent directory is exactly folder.
func ImmediateParent(folder string) FileFilter {
	return FileFilter{Kind: FilterImmediateParent, Folder: util.DenormalizePath(strings.TrimSuffix(folder, "/"))}
}

func ImgSize(min, max *uint32) (FileFilter, error) {
	if min != nil && max != nil && *min > *max {
		return FileFilter{}, errors.Errorf("img_size: min %d is greater than max %d", *min, *max)
	}
	return FileFilter{Kind: FilterImgSize, Min: min, Max: max}, nil
}

func FileNameMatchesRegex(expr string) (FileFilter, error) {
	return regexFilter(FilterFileNameMatchesRegex, expr)
}

func PathMatchesRegex(expr string) (FileFilter, error) {
	return regexFilter(FilterPathMatchesRegex, expr)
}

// PathMatchesGlob matches the forward-slash relative path against a
// doublestar pattern such as "**/*.{jpg,png}".
func PathMatchesGlob(pattern string) (FileFilter, error) {
	if !doublestar.ValidatePattern(pattern) {
		return FileFilter{}, errors.Errorf("invalid glob pattern %q", pattern)
	}
	return FileFilter{Kind: FilterPathMatchesGlob, Pattern: pattern}, nil
}

func regexFilter(kind FilterKind, expr string) (FileFilter, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return FileFilter{}, errors.Errorf("%s: invalid regular expression %q: %w", kind, expr, err)
	}
	return FileFilter{Kind: kind, Pattern: expr, re: re}, nil
}

// Matches evaluates the filter against fp. Metadata is only read by the
// predicates that need it; a missing value never matches.
func (f *FileFilter) Matches(fp *entry.FilePath) bool {
	switch f.Kind {
	case FilterAll:
		for i := range f.Children {
			if !f.Children[i].Matches(fp) {
				return false
			}
		}
		return true
	case FilterAny:
		for i := range f.Children {
			if f.Children[i].Matches(fp) {
				return true
			}
		}
		return false
	case FilterNot:
		return !f.Inner.Matches(fp)
	case FilterCatchAll:
		return true
	case FilterHasExtension:
		ext, ok := fp.Ext()
		if !ok {
			return false
		}
		for _, want := range f.Extensions {
			if equalFoldASCII(want, ext) {
				return true
			}
		}
		return false
	case FilterFileNameMatchesRegex:
		return f.re.MatchString(fp.Name())
	case FilterPathMatchesRegex:
		return f.re.MatchString(fp.SlashPath())
	case FilterPathMatchesGlob:
		ok, err := doublestar.Match(f.Pattern, fp.SlashPath())
		return err == nil && ok
	case FilterInRootPath:
		for p := fp.Parent(); p != ""; p = parentOf(p) {
			if p == f.Folder {
				return true
			}
		}
		return false
	case FilterImmediateParent:
		return fp.Parent() == f.Folder
	case FilterIsFile:
		return fp.IsFile()
	case FilterIsDir:
		return fp.IsDir()
	case FilterHasImageMetadata:
		_, ok := fp.ImageMetadata()
		return ok
	case FilterHasImageDateTime:
		m, ok := fp.ImageMetadata()
		return ok && m.DateTime != nil
	case FilterImgSize:
		m, ok := fp.ImageMetadata()
		return ok && m.Dimensions != nil && m.Dimensions.Within(f.Min, f.Max)
	default:
		return false
	}
}

func parentOf(rel string) string {
	dir := filepath.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// equalFoldASCII compares case-insensitively in the ASCII range only.
func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (f FileFilter) String() string {
	switch f.Kind {
	case FilterAll, FilterAny:
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s(%s)", f.Kind, strings.Join(parts, ", "))
	case FilterNot:
		return fmt.Sprintf("not(%s)", f.Inner)
	case FilterHasExtension:
		return fmt.Sprintf("has_extension(%s)", strings.Join(f.Extensions, ", "))
	case FilterInRootPath, FilterImmediateParent:
		return fmt.Sprintf("%s(%s)", f.Kind, util.NormalizePath(f.Folder))
	case FilterFileNameMatchesRegex, FilterPathMatchesRegex, FilterPathMatchesGlob:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Pattern)
	default:
		return f.Kind.String()
	}
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for FileFilter.
func (f *FileFilter) UnmarshalYAML(node *yaml.Node) error {
	name, value, err := variant(node, "filter")
	if err != nil {
		return err
	}
	kind, ok := stringToFilterKind[name]
	if !ok {
		return errors.Errorf("line %d: unknown filter %q", node.Line, name)
	}

	switch kind {
	case FilterCatchAll, FilterIsFile, FilterIsDir, FilterHasImageMetadata, FilterHasImageDateTime:
		if err := rejectValue(name, value); err != nil {
			return err
		}
		*f = FileFilter{Kind: kind}
		return nil
	}

	if err := requireValue(name, value, node.Line); err != nil {
		return err
	}

	var parsed FileFilter
	switch kind {
	case FilterAll, FilterAny:
		var children []FileFilter
		if err := value.Decode(&children); err != nil {
			return errors.Errorf("line %d: %s: %w", value.Line, name, err)
		}
		parsed = FileFilter{Kind: kind, Children: children}
	case FilterNot:
		var inner FileFilter
		if err := value.Decode(&inner); err != nil {
			return errors.Errorf("line %d: not: %w", value.Line, err)
		}
		parsed = Not(inner)
	case FilterHasExtension:
		var exts []string
		if err := value.Decode(&exts); err != nil {
			return errors.Errorf("line %d: has_extension must be a list of strings: %w", value.Line, err)
		}
		parsed = HasExtension(exts...)
	case FilterInRootPath, FilterImmediateParent:
		var folder string
		if err := value.Decode(&folder); err != nil {
			return errors.Errorf("line %d: %s must be a string: %w", value.Line, name, err)
		}
		if kind == FilterInRootPath {
			parsed = InRootPath(folder)
		} else {
			parsed = ImmediateParent(folder)
		}
	case FilterFileNameMatchesRegex, FilterPathMatchesRegex, FilterPathMatchesGlob:
		var pattern string
		if err := value.Decode(&pattern); err != nil {
			return errors.Errorf("line %d: %s must be a string: %w", value.Line, name, err)
		}
		switch kind {
		case FilterFileNameMatchesRegex:
			parsed, err = FileNameMatchesRegex(pattern)
		case FilterPathMatchesRegex:
			parsed, err = PathMatchesRegex(pattern)
		default:
			parsed, err = PathMatchesGlob(pattern)
		}
		if err != nil {
			return errors.Errorf("line %d: %w", value.Line, err)
		}
	case FilterImgSize:
		if err := checkKeys(value, "img_size", "min", "max"); err != nil {
			return err
		}
		var bounds struct {
			Min *uint32 `yaml:"min"`
			Max *uint32 `yaml:"max"`
		}
		if err := value.Decode(&bounds); err != nil {
			return errors.Errorf("line %d: img_size: %w", value.Line, err)
		}
		parsed, err = ImgSize(bounds.Min, bounds.Max)
		if err != nil {
			return errors.Errorf("line %d: %w", value.Line, err)
		}
	}
	*f = parsed
	return nil
}
