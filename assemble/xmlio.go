package assemble

import (
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Files at least this large are read through a memory map.
const mmapMinSize = 128 * 1024

var openMmapReader = mmap.Open

// ErrNotXML is returned for payloads that are recognizably binary.
var ErrNotXML = errors.New("payload is not XML")

// LoadDocument reads and parses an XML file.
func LoadDocument(path string) (*etree.Document, error) {
	content, err := readFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if err := checkPayload(content); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if doc.Root() == nil {
		return nil, errors.Errorf("parse %s: no root element", path)
	}
	return doc, nil
}

// SaveDocument writes doc to path through a temporary file in the same
// directory.
func SaveDocument(doc *etree.Document, path string) error {
	doc.Indent(2)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".odf-*.xml")
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	tmpName := tmp.Name()
	if _, err := doc.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "rename %s", path)
	}
	return nil
}

func checkPayload(content []byte) error {
	head := content
	if len(head) > 261 {
		head = head[:261]
	}
	if filetype.IsArchive(head) || filetype.IsImage(head) || filetype.IsVideo(head) || filetype.IsAudio(head) || filetype.IsDocument(head) {
		kind, _ := filetype.Match(head)
		return errors.Wrapf(ErrNotXML, "detected %s", kind.MIME.Value)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() >= mmapMinSize {
		if content, err := readMmap(path, info.Size()); err == nil {
			return content, nil
		}
	}
	return os.ReadFile(path)
}

func readMmap(path string, size int64) ([]byte, error) {
	r, err := openMmapReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}
