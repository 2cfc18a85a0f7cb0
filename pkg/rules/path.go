package rules

import (
	"fmt"
	"path/filepath"
	"time"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/entry"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// ElementKind selects what a PathElement contributes to a destination path.
type ElementKind int

const (
	ElemFileName ElementKind = iota
	ElemOriginalPath
	ElemOriginalPathWithoutFileName
	ElemDirectParentFolder
	ElemFileNameWithExtension
	ElemFileNameWithoutExtension
	ElemFileExtension
	ElemImageDateTime
	ElemAccessTime
	ElemCreatedTime
	ElemModifiedTime
)

var elementKindToString = map[ElementKind]string{
	ElemFileName:                    "file_name",
	ElemOriginalPath:                "original_path",
	ElemOriginalPathWithoutFileName: "original_path_without_file_name",
	ElemDirectParentFolder:          "direct_parent_folder",
	ElemFileNameWithExtension:       "file_name_with_extension",
	ElemFileNameWithoutExtension:    "file_name_without_extension",
	ElemFileExtension:               "file_extension",
	ElemImageDateTime:               "img_date_time",
	ElemAccessTime:                  "access_time",
	ElemCreatedTime:                 "created_time",
	ElemModifiedTime:                "modified_time",
}

var stringToElementKind map[string]ElementKind

func init() {
	stringToElementKind = util.InvertMap(elementKindToString)
}

func (k ElementKind) String() string {
	if s, ok := elementKindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown_path_element(%d)", int(k))
}

var (
	ErrNoParent        = errors.Base("entry has no parent folder")
	ErrNoExtension     = errors.Base("file has no extension")
	ErrNoFsMetadata    = errors.Base("no filesystem metadata")
	ErrNoTimestamp     = errors.Base("timestamp not recorded by this filesystem")
	ErrNoImageMetadata = errors.Base("no image metadata")
	ErrNoImageDateTime = errors.Base("no image date/time")
	errUnknownElement  = errors.Base("unknown path element")
)

// PathElement is one step in building a destination path.
type PathElement struct {
	Kind    ElementKind
	Literal string         // file_name; host separators
	Format  DateTimeFormat // time elements
}

func FileName(literal string) PathElement {
	return PathElement{Kind: ElemFileName, Literal: util.DenormalizePath(literal)}
}
func OriginalPath() PathElement { return PathElement{Kind: ElemOriginalPath} }
func OriginalPathWithoutFileName() PathElement {
	return PathElement{Kind: ElemOriginalPathWithoutFileName}
}
func DirectParentFolder() PathElement       { return PathElement{Kind: ElemDirectParentFolder} }
func FileNameWithExtension() PathElement    { return PathElement{Kind: ElemFileNameWithExtension} }
func FileNameWithoutExtension() PathElement { return PathElement{Kind: ElemFileNameWithoutExtension} }
func FileExtension() PathElement            { return PathElement{Kind: ElemFileExtension} }

// TimeElement builds one of the time based elements with a strftime layout.
func TimeElement(kind ElementKind, layout string) (PathElement, error) {
	switch kind {
	case ElemImageDateTime, ElemAccessTime, ElemCreatedTime, ElemModifiedTime:
	default:
		return PathElement{}, errors.Errorf("%s is not a time element", kind)
	}
	f, err := ParseDateTimeFormat(layout)
	if err != nil {
		return PathElement{}, err
	}
	return PathElement{Kind: kind, Format: f}, nil
}

func (e PathElement) String() string {
	switch e.Kind {
	case ElemFileName:
		return fmt.Sprintf("file_name(%s)", util.NormalizePath(e.Literal))
	case ElemImageDateTime, ElemAccessTime, ElemCreatedTime, ElemModifiedTime:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Format)
	default:
		return e.Kind.String()
	}
}

// RenderError identifies the element and entry a destination could not be built for.
type RenderError struct {
	Element PathElement
	Path    string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to evaluate path element %s for %s: %v", e.Element, e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Render joins the elements, left to right, onto base. If any element fails
// nothing is returned and the error is a *RenderError.
func Render(elements []PathElement, fp *entry.FilePath, base string) (string, error) {
	parts := make([]string, 0, len(elements)+1)
	parts = append(parts, base)
	for _, el := range elements {
		part, err := el.render(fp)
		if err != nil {
			return "", &RenderError{Element: el, Path: fp.AbsPath, Err: err}
		}
		parts = append(parts, part)
	}
	return filepath.Join(parts...), nil
}

func (e PathElement) render(fp *entry.FilePath) (string, error) {
	switch e.Kind {
	case ElemFileName:
		return e.Literal, nil
	case ElemOriginalPath:
		return fp.RelPath, nil
	case ElemOriginalPathWithoutFileName:
		return fp.Parent(), nil
	case ElemDirectParentFolder:
		parent := fp.Parent()
		if parent == "" {
			return "", ErrNoParent
		}
		return filepath.Base(parent), nil
	case ElemFileNameWithExtension:
		return fp.Name(), nil
	case ElemFileNameWithoutExtension:
		return fp.Stem(), nil
	case ElemFileExtension:
		ext, ok := fp.Ext()
		if !ok {
			return "", ErrNoExtension
		}
		return ext, nil
	case ElemImageDateTime:
		m, ok := fp.ImageMetadata()
		if !ok {
			return "", ErrNoImageMetadata
		}
		if m.DateTime == nil {
			return "", ErrNoImageDateTime
		}
		return e.Format.Format(*m.DateTime), nil
	case ElemAccessTime, ElemCreatedTime, ElemModifiedTime:
		m, ok := fp.Metadata()
		if !ok {
			return "", ErrNoFsMetadata
		}
		var ts *time.Time
		switch e.Kind {
		case ElemAccessTime:
			ts = m.AccessTime
		case ElemCreatedTime:
			ts = m.CreatedTime
		default:
			ts = &m.ModTime
		}
		if ts == nil {
			return "", ErrNoTimestamp
		}
		return e.Format.Format(*ts), nil
	default:
		return "", errUnknownElement
	}
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for PathElement.
func (e *PathElement) UnmarshalYAML(node *yaml.Node) error {
	name, value, err := variant(node, "path element")
	if err != nil {
		return err
	}
	kind, ok := stringToElementKind[name]
	if !ok {
		return errors.Errorf("line %d: unknown path element %q", node.Line, name)
	}

	switch kind {
	case ElemFileName, ElemImageDateTime, ElemAccessTime, ElemCreatedTime, ElemModifiedTime:
		if err := requireValue(name, value, node.Line); err != nil {
			return err
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return errors.Errorf("line %d: %s must be a string: %w", value.Line, name, err)
		}
		if kind == ElemFileName {
			*e = FileName(s)
			return nil
		}
		el, err := TimeElement(kind, s)
		if err != nil {
			return errors.Errorf("line %d: %s: %w", value.Line, name, err)
		}
		*e = el
		return nil
	default:
		if err := rejectValue(name, value); err != nil {
			return err
		}
		*e = PathElement{Kind: kind}
		return nil
	}
}
