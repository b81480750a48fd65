package course

import (
	"bytes"
	"io"

	"github.com/google/uuid"
)

// StagedFile is a file the user selected but has not submitted yet. Staged
// files live in memory only; nothing is transmitted until the surrounding
// document form is submitted.
type StagedFile struct {
	ID       string
	Filename string
	Mimetype string
	Size     int64
	content  []byte
}

// Stage wraps selected file content for later submission.
func Stage(filename, mimetype string, content []byte) StagedFile {
	return StagedFile{
		ID:       uuid.NewString(),
		Filename: filename,
		Mimetype: mimetype,
		Size:     int64(len(content)),
		content:  content,
	}
}

// Reader returns a fresh reader over the staged content.
func (f StagedFile) Reader() io.Reader {
	return bytes.NewReader(f.content)
}
