package artifact

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// Codec is the compression applied to an artifact stream.
type Codec string

const (
	None Codec = "none"
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
)

var codecToString = map[Codec]string{
	None: "none",
	Gzip: "gzip",
	Zstd: "zstd",
}

var stringToCodec map[string]Codec

func init() {
	stringToCodec = util.InvertMap(codecToString)
}

func (c Codec) String() string {
	if str, ok := codecToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_codec(%s)", string(c))
}

// ParseCodec parses a codec name. The empty string selects Gzip.
func ParseCodec(s string) (Codec, error) {
	if s == "" {
		return Gzip, nil
	}
	if c, ok := stringToCodec[s]; ok {
		return c, nil
	}
	return "", errors.Errorf("invalid index compression %q: must be 'gzip', 'zstd' or 'none'", s)
}

// Extension is appended to an artifact's base name.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// MarshalJSON implements the json.Marshaler interface for Codec.
func (c Codec) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Codec.
func (c *Codec) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return errors.Errorf("index compression should be a string (line %d): %w", node.Line, err)
	}
	parsed, err := ParseCodec(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// newWriter wraps w with the codec's compressor. Closing the returned writer
// flushes the compressor but never closes w.
func (c Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return pgzip.NewWriter(w), nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	case None, "":
		return nopWriteCloser{w}, nil
	default:
		return nil, errors.Errorf("unsupported codec: %s", c)
	}
}

func (c Codec) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Errorf("failed to open zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	case None, "":
		return io.NopCloser(r), nil
	default:
		return nil, errors.Errorf("unsupported codec: %s", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
