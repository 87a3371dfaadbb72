package elfimage

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

type BuildID struct {
	ID  string
	Typ string
}

func GNUBuildID(s string) BuildID {
	return BuildID{ID: s, Typ: "gnu"}
}

func GoBuildID(s string) BuildID {
	return BuildID{ID: s, Typ: "go"}
}

func (b BuildID) Empty() bool {
	return b.ID == "" || b.Typ == ""
}

func (b BuildID) GNU() bool {
	return b.Typ == "gnu"
}

var ErrNoBuildIDSection = errors.New("build ID section not found")

// BuildID returns the GNU build ID of the image, falling back to the Go
// toolchain's build ID.
func (img *Image) BuildID() (BuildID, error) {
	id, err := img.GNUBuildID()
	if err != nil && !errors.Is(err, ErrNoBuildIDSection) {
		return BuildID{}, err
	}
	if !id.Empty() {
		return id, nil
	}
	id, err = img.GoBuildID()
	if err != nil && !errors.Is(err, ErrNoBuildIDSection) {
		return BuildID{}, err
	}
	if !id.Empty() {
		return id, nil
	}
	return BuildID{}, ErrNoBuildIDSection
}

var goBuildIDSep = []byte("/")

func (img *Image) GoBuildID() (BuildID, error) {
	if img.file.Section(".note.go.buildid") == nil {
		return BuildID{}, ErrNoBuildIDSection
	}
	data, err := img.SectionData(".note.go.buildid")
	if err != nil {
		return BuildID{}, fmt.Errorf("reading .note.go.buildid: %w", err)
	}
	if len(data) < 17 {
		return BuildID{}, fmt.Errorf(".note.go.buildid is too small")
	}
	data = data[16 : len(data)-1]
	if len(data) < 40 || bytes.Count(data, goBuildIDSep) < 2 {
		return BuildID{}, fmt.Errorf("wrong .note.go.buildid")
	}
	id := string(data)
	if id == "redacted" {
		return BuildID{}, fmt.Errorf("redacted .note.go.buildid")
	}
	return GoBuildID(id), nil
}

func (img *Image) GNUBuildID() (BuildID, error) {
	if img.file.Section(".note.gnu.build-id") == nil {
		return BuildID{}, ErrNoBuildIDSection
	}
	data, err := img.SectionData(".note.gnu.build-id")
	if err != nil {
		return BuildID{}, fmt.Errorf("reading .note.gnu.build-id: %w", err)
	}
	if len(data) < 16 {
		return BuildID{}, fmt.Errorf(".note.gnu.build-id is too small")
	}
	if !bytes.Equal([]byte("GNU"), data[12:15]) {
		return BuildID{}, fmt.Errorf(".note.gnu.build-id is not a GNU build-id")
	}
	raw := data[16:]
	if len(raw) != 20 && len(raw) != 8 { // 8 is xxhash, for example in Container-Optimized OS
		return BuildID{}, fmt.Errorf(".note.gnu.build-id has wrong size %d", len(raw))
	}
	return GNUBuildID(hex.EncodeToString(raw)), nil
}
