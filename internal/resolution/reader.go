package resolution

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"slidebridge/internal/automation"
)

// slideRelsPattern matches a slide's relationship part and captures the
// 1-based slide number.
var slideRelsPattern = regexp.MustCompile(`^ppt/slides/_rels/slide(\d+)\.xml\.rels$`)

// readSnapshot copies the document to a private temp file and parses the
// copy. The copy is the point-in-time snapshot: once it exists, the editor
// can keep writing the original without affecting the parse.
func readSnapshot(docPath string) (*DocComments, error) {
	tmp, err := os.CreateTemp("", "slidebridge-snap-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := os.Open(docPath)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	_, copyErr := io.Copy(tmp, src)
	src.Close()
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close snapshot: %w", err)
	}
	if copyErr != nil {
		return nil, fmt.Errorf("snapshot copy: %w", copyErr)
	}

	return parseDocument(tmpPath, docPath)
}

// parseDocument reads the zipped document container: author tables first,
// then each slide's relationship part to find its comment parts.
func parseDocument(zipPath, docPath string) (*DocComments, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer zr.Close()

	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}

	authors := make(map[string]string)
	for _, name := range []string{"ppt/authors.xml", "ppt/commentAuthors.xml"} {
		if f, ok := byName[name]; ok {
			if err := parseAuthors(f, authors); err != nil {
				return nil, err
			}
		}
	}

	doc := &DocComments{
		Path:   docPath,
		Slides: make(map[int][]automation.CommentRecord),
	}

	for _, f := range zr.File {
		m := slideRelsPattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		slide, _ := strconv.Atoi(m[1])

		targets, err := commentTargets(f)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			part, ok := byName[target]
			if !ok {
				continue
			}
			records, err := parseCommentPart(part, authors, slide)
			if err != nil {
				return nil, err
			}
			doc.Slides[slide] = append(doc.Slides[slide], records...)
		}
	}
	return doc, nil
}

// parseAuthors fills id -> display name from an author table part.
func parseAuthors(f *zip.File, authors map[string]string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.Name, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "author" && start.Name.Local != "cmAuthor" {
			continue
		}
		var id, name string
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "id":
				id = a.Value
			case "name":
				name = a.Value
			}
		}
		if id != "" {
			authors[id] = name
		}
	}
}

// commentTargets returns the container paths of a slide's comment parts.
func commentTargets(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	var rels struct {
		Relationships []struct {
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Name, err)
	}

	var out []string
	for _, rel := range rels.Relationships {
		if !strings.Contains(strings.ToLower(rel.Target), "comment") {
			continue
		}
		// Targets are relative to ppt/slides/.
		out = append(out, path.Clean(path.Join("ppt/slides", rel.Target)))
	}
	return out, nil
}

// parseCommentPart walks one comment part tolerantly: both the modern and
// the legacy format use a "cm" element per thread, with replies nested in
// the modern format. Only the shapes we need are read; everything else in
// the part is ignored.
func parseCommentPart(f *zip.File, authors map[string]string, slide int) ([]automation.CommentRecord, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)

	var out []automation.CommentRecord
	var stack []*automation.CommentRecord
	var textDepth int

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "cm":
				rec := newSavedComment(t, authors, slide)
				stack = append(stack, &rec)
			case "t", "text":
				if len(stack) > 0 {
					textDepth++
				}
			}
		case xml.CharData:
			if textDepth > 0 && len(stack) > 0 {
				top := stack[len(stack)-1]
				top.Text += string(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t", "text":
				if textDepth > 0 {
					textDepth--
				}
			case "cm":
				if len(stack) == 0 {
					continue
				}
				rec := *stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					parent := stack[len(stack)-1]
					parent.Replies = append(parent.Replies, rec)
				} else {
					out = append(out, rec)
				}
			}
		}
	}
	return out, nil
}

// newSavedComment builds a record from a cm element's attributes. A thread
// without a status attribute is open: the saved format only writes the
// attribute once a thread has been resolved or closed. An unrecognized
// value degrades to unknown.
func newSavedComment(start xml.StartElement, authors map[string]string, slide int) automation.CommentRecord {
	rec := automation.CommentRecord{
		SlideIndex: slide,
		Status:     automation.StatusActive,
	}
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "status":
			rec.Status = automation.ParseStatus(a.Value)
		case "authorId":
			if name, ok := authors[a.Value]; ok {
				rec.Author = name
			}
		case "created", "dt":
			rec.Created = parseCommentTime(a.Value)
		}
	}
	return rec
}

// parseCommentTime parses the timestamp shapes both part formats produce.
func parseCommentTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
