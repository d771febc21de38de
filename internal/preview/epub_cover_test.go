package preview

import (
	"archive/zip"
	"bytes"
	"testing"
)

type zipEntry struct {
	name string
	data string
}

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", entry.name, err)
		}
		if _, err := w.Write([]byte(entry.data)); err != nil {
			t.Fatalf("write zip entry %s: %v", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func buildEpub(t *testing.T, opf string, extra ...zipEntry) []byte {
	t.Helper()
	entries := []zipEntry{
		{name: "mimetype", data: "application/epub+zip"},
		{name: "META-INF/container.xml", data: containerXML},
		{name: "OEBPS/content.opf", data: opf},
	}
	return buildZip(t, append(entries, extra...))
}

func TestExtractEpubCoverEpub3Property(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>
  </manifest>
</package>`
	data := buildEpub(t, opf, zipEntry{name: "OEBPS/images/cover.jpg", data: "jpeg-cover-bytes"})

	cover, mimeType := ExtractEpubCover(data)
	if string(cover) != "jpeg-cover-bytes" {
		t.Fatalf("cover bytes = %q, want jpeg-cover-bytes", cover)
	}
	if mimeType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mimeType)
	}
}

func TestExtractEpubCoverEpub2MetaPointer(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="page" href="page1.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="cover.png" media-type="image/png"/>
  </manifest>
</package>`
	data := buildEpub(t, opf, zipEntry{name: "OEBPS/cover.png", data: "png-cover-bytes"})

	cover, mimeType := ExtractEpubCover(data)
	if string(cover) != "png-cover-bytes" {
		t.Fatalf("cover bytes = %q, want png-cover-bytes", cover)
	}
	if mimeType != "image/png" {
		t.Fatalf("mime = %q, want image/png", mimeType)
	}
}

func TestExtractEpubCoverFallsBackToFirstImageItem(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml"/>
    <item id="illus" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
</package>`
	data := buildEpub(t, opf, zipEntry{name: "OEBPS/images/cover.jpg", data: "fallback-bytes"})

	cover, mimeType := ExtractEpubCover(data)
	if string(cover) != "fallback-bytes" {
		t.Fatalf("cover bytes = %q, want fallback-bytes", cover)
	}
	if mimeType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mimeType)
	}
}

func TestExtractEpubCoverMissingContainer(t *testing.T) {
	data := buildZip(t, []zipEntry{
		{name: "mimetype", data: "application/epub+zip"},
		{name: "OEBPS/content.opf", data: "<package/>"},
	})

	cover, mimeType := ExtractEpubCover(data)
	if cover != nil || mimeType != "" {
		t.Fatalf("expected (nil, \"\"), got (%q, %q)", cover, mimeType)
	}
}

func TestExtractEpubCoverGarbageInput(t *testing.T) {
	cover, mimeType := ExtractEpubCover([]byte("not a zip archive at all"))
	if cover != nil || mimeType != "" {
		t.Fatalf("expected (nil, \"\"), got (%q, %q)", cover, mimeType)
	}
}

func TestExtractEpubCoverBaseFilenameScan(t *testing.T) {
	// Manifest href points at a directory that does not exist in the
	// archive; the extractor should find the entry by base filename.
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>
    <item id="cover" href="img/Cover.JPG" media-type="" properties="cover-image"/>
  </manifest>
</package>`
	data := buildEpub(t, opf, zipEntry{name: "OEBPS/assets/cover.jpg", data: "scanned-bytes"})

	cover, mimeType := ExtractEpubCover(data)
	if string(cover) != "scanned-bytes" {
		t.Fatalf("cover bytes = %q, want scanned-bytes", cover)
	}
	// No declared media type, so the extension decides.
	if mimeType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mimeType)
	}
}

func TestExtractEpubCoverNoCandidates(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata/>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
</package>`
	data := buildEpub(t, opf)

	cover, mimeType := ExtractEpubCover(data)
	if cover != nil || mimeType != "" {
		t.Fatalf("expected (nil, \"\"), got (%q, %q)", cover, mimeType)
	}
}
