package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

const (
	relTypeOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	defaultMainPart       = "word/document.xml"
)

// part is one entry of the OPC zip package.
type part struct {
	header zip.FileHeader
	data   []byte
}

type relationships struct {
	XMLName xml.Name       `xml:"Relationships"`
	Items   []relationship `xml:"Relationship"`
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

func readPackage(r io.ReaderAt, size int64) ([]*part, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("not a zip package: %w", err)
	}

	parts := make([]*part, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", f.Name, err)
		}
		parts = append(parts, &part{header: f.FileHeader, data: data})
	}
	return parts, nil
}

// mainPartName resolves the officeDocument relationship of the package.
func mainPartName(parts []*part) string {
	for _, p := range parts {
		if p.header.Name != "_rels/.rels" {
			continue
		}
		var rels relationships
		if err := xml.Unmarshal(p.data, &rels); err != nil {
			return defaultMainPart
		}
		for _, rel := range rels.Items {
			if rel.Type == relTypeOfficeDocument {
				return path.Clean(trimLeadingSlash(rel.Target))
			}
		}
	}
	return defaultMainPart
}

func trimLeadingSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}

func writePackage(w io.Writer, parts []*part) error {
	zw := zip.NewWriter(w)
	for _, p := range parts {
		header := &zip.FileHeader{
			Name:     p.header.Name,
			Method:   zip.Deflate,
			Modified: p.header.Modified,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create part %s: %w", p.header.Name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return fmt.Errorf("write part %s: %w", p.header.Name, err)
		}
	}
	return zw.Close()
}

// writeFileAtomic writes data produced by fn to a temp file next to target
// and renames it into place, so target is either untouched or complete.
func writeFileAtomic(target string, fn func(io.Writer) error) (err error) {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	var buf bytes.Buffer
	if err = fn(&buf); err != nil {
		return err
	}
	if _, err = tmp.Write(buf.Bytes()); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if st, statErr := os.Stat(target); statErr == nil {
		mode = st.Mode().Perm()
	}
	if err = os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

func newPartHeader(name string) zip.FileHeader {
	return zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
}
