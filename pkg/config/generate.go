package config

import (
	"os"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// ExampleConfig is written by the init command. It must always parse.
const ExampleConfig = `# pgl-sortbackup configuration.
# File groups are evaluated top to bottom, the first match decides.
# Unmatched directories are traversed, unmatched files are ignored.
file_groups:
  skip_thumbnails:
    sources: all
    filter:
      any:
        - directly_in_folder: .thumbnails
        - file_name_matches_regex: '^\._'
    rule: ignore

  photos_by_date:
    sources:
      only: [phone]
    filter:
      all:
        - is_file
        - has_extension: [jpg, jpeg, heic]
        - has_img_date_time
    rule:
      copy_to:
        target: photos
        path:
          - img_date_time: "%Y"
          - img_date_time: "%m"
          - file_name_with_extension

  documents:
    sources: all
    filter:
      path_matches_glob: "**/*.{pdf,odt,docx}"
    rule:
      copy_exact:
        target: archive

  inventory:
    sources:
      except: [phone]
    filter:
      all:
        - is_file
        - has_extension: [mp4, mov]
    rule:
      log_file:
        target: archive
        log_file:
          - file_name: videos.txt
        full_path: true

sources:
  phone:
    path: ~/Pictures/Phone
    ignore_paths:
      - .trash
  laptop:
    path: ~/Documents
    disabled: false

targets:
  photos: /mnt/backup/photos
  archive: /mnt/backup/archive

settings:
  file_size_style: binary
  index_compression: gzip

# Commands run through the shell before and after copying.
hooks:
  before_run: []
  after_run: []
`

// Generate writes the example configuration to path. An existing file is
// left untouched unless overwrite is set.
func Generate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("config file %s already exists, use --force to overwrite", path)
		}
	}
	if err := os.WriteFile(path, []byte(ExampleConfig), util.UserWritableFilePerms); err != nil {
		return errors.Errorf("failed to write config file: %w", err)
	}
	plog.Info("Successfully saved config file", "path", path)
	return nil
}
