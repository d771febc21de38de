package preview

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"log/slog"
	"path"
	"strings"
)

// EPUB container and package-document (OPF) shapes. encoding/xml matches on
// local element names, so the EPUB namespaces need no special handling.
type epubContainer struct {
	Rootfiles []epubRootfile `xml:"rootfiles>rootfile"`
}

type epubRootfile struct {
	FullPath string `xml:"full-path,attr"`
}

type opfPackage struct {
	Metas []opfMeta `xml:"metadata>meta"`
	Items []opfItem `xml:"manifest>item"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// ExtractEpubCover locates the cover image inside raw EPUB zip bytes and
// returns its bytes and mime type. A corrupt or cover-less EPUB is an
// expected case, not an error: every failure degrades to (nil, "") with a
// warn log and nothing is ever raised to the caller.
func ExtractEpubCover(data []byte) ([]byte, string) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Warn("epub cover: not a readable zip archive", "error", err)
		return nil, ""
	}
	containerXML, ok := readZipEntry(zr, "META-INF/container.xml")
	if !ok {
		slog.Warn("epub cover: missing META-INF/container.xml")
		return nil, ""
	}
	var container epubContainer
	if err := xml.Unmarshal(containerXML, &container); err != nil {
		slog.Warn("epub cover: container.xml unparseable", "error", err)
		return nil, ""
	}
	if len(container.Rootfiles) == 0 || strings.TrimSpace(container.Rootfiles[0].FullPath) == "" {
		slog.Warn("epub cover: container.xml has no rootfile pointer")
		return nil, ""
	}
	opfPath := container.Rootfiles[0].FullPath
	opfXML, ok := readZipEntry(zr, opfPath)
	if !ok {
		slog.Warn("epub cover: package document missing", "path", opfPath)
		return nil, ""
	}
	var pkg opfPackage
	if err := xml.Unmarshal(opfXML, &pkg); err != nil {
		slog.Warn("epub cover: package document unparseable", "path", opfPath, "error", err)
		return nil, ""
	}
	item, ok := findCoverItem(pkg)
	if !ok {
		slog.Warn("epub cover: no cover candidate in manifest", "path", opfPath)
		return nil, ""
	}
	entry := resolveCoverEntry(zr, opfPath, item.Href)
	if entry == nil {
		slog.Warn("epub cover: manifest href not found in archive", "href", item.Href)
		return nil, ""
	}
	content, err := readAllEntry(entry)
	if err != nil {
		slog.Warn("epub cover: reading cover entry failed", "name", entry.Name, "error", err)
		return nil, ""
	}
	return content, coverMimeType(item, entry.Name)
}

// findCoverItem walks the manifest in priority order: the EPUB3 cover-image
// property, then the EPUB2 <meta name="cover"> pointer, then the first
// image/* manifest item as a last resort.
func findCoverItem(pkg opfPackage) (opfItem, bool) {
	for _, item := range pkg.Items {
		for _, prop := range strings.Fields(item.Properties) {
			if prop == "cover-image" {
				return item, true
			}
		}
	}
	for _, meta := range pkg.Metas {
		if meta.Name != "cover" || strings.TrimSpace(meta.Content) == "" {
			continue
		}
		for _, item := range pkg.Items {
			if item.ID == meta.Content {
				return item, true
			}
		}
	}
	for _, item := range pkg.Items {
		if strings.HasPrefix(item.MediaType, "image/") {
			return item, true
		}
	}
	return opfItem{}, false
}

// resolveCoverEntry resolves href relative to the OPF directory, retries the
// raw href as a literal path, then falls back to a base-filename scan.
func resolveCoverEntry(zr *zip.Reader, opfPath, href string) *zip.File {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	resolved := path.Clean(path.Join(path.Dir(opfPath), href))
	if entry := findZipEntry(zr, resolved); entry != nil {
		return entry
	}
	if entry := findZipEntry(zr, href); entry != nil {
		return entry
	}
	base := strings.ToLower(path.Base(href))
	for _, file := range zr.File {
		if strings.ToLower(path.Base(file.Name)) == base {
			return file
		}
	}
	return nil
}

func coverMimeType(item opfItem, entryName string) string {
	if mt := strings.TrimSpace(item.MediaType); mt != "" {
		return mt
	}
	switch strings.ToLower(path.Ext(entryName)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func findZipEntry(zr *zip.Reader, name string) *zip.File {
	for _, file := range zr.File {
		if file.Name == name {
			return file
		}
	}
	return nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, bool) {
	entry := findZipEntry(zr, name)
	if entry == nil {
		return nil, false
	}
	content, err := readAllEntry(entry)
	if err != nil {
		return nil, false
	}
	return content, true
}

func readAllEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
