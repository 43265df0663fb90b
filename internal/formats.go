package internal

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var utf8BOM = []byte("\xef\xbb\xbf")

func loadText(_ context.Context, path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errors.New("not valid UTF-8 text")
	}
	return []Document{{Content: string(data)}}, nil
}

// loadPDF yields one document per non-empty page.
func loadPDF(ctx context.Context, path string) (docs []Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		docs = append(docs, Document{
			Content:  content,
			Metadata: map[string]string{MetaPage: strconv.Itoa(i)},
		})
	}

	return docs, nil
}

func loadDOCX(_ context.Context, path string) ([]Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return nil, errors.New("open docx: missing word/document.xml")
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open document part: %w", err)
	}
	defer rc.Close()

	content, err := docxText(rc)
	if err != nil {
		return nil, fmt.Errorf("parse document part: %w", err)
	}
	return []Document{{Content: content}}, nil
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return normalizeBlocks(b.String()), nil
}

var htmlBlocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Section: true, atom.Article: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Header: true, atom.Footer: true,
}

func loadHTML(_ context.Context, path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	root, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	var title string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}

		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && htmlBlocks[n.DataAtom] {
			b.WriteString("\n\n")
		}
	}
	walk(root)

	doc := Document{Content: normalizeBlocks(b.String())}
	if title != "" {
		doc.Metadata = map[string]string{"title": title}
	}
	return []Document{doc}, nil
}

func loadMarkdown(_ context.Context, path string) ([]Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	src = bytes.TrimPrefix(src, utf8BOM)
	if !utf8.Valid(src) {
		return nil, errors.New("not valid UTF-8 text")
	}

	root := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	return []Document{{Content: normalizeBlocks(b.String())}}, nil
}

// loadDelimited yields one document per data row, rendered as
// "column: value" lines.
func loadDelimited(comma rune) LoadFunc {
	return func(_ context.Context, path string) ([]Document, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Comma = comma

		header, err := r.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if len(header) > 0 {
			header[0] = strings.TrimPrefix(header[0], string(utf8BOM))
		}

		var docs []Document
		for row := 0; ; row++ {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read row %d: %w", row, err)
			}

			var b strings.Builder
			for i, col := range header {
				fmt.Fprintf(&b, "%s: %s\n", strings.TrimSpace(col), strings.TrimSpace(record[i]))
			}
			docs = append(docs, Document{
				Content:  strings.TrimRight(b.String(), "\n"),
				Metadata: map[string]string{MetaRow: strconv.Itoa(row)},
			})
		}

		return docs, nil
	}
}

// normalizeBlocks trims every line and collapses runs of blank lines so
// paragraphs are separated by exactly one empty line.
func normalizeBlocks(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
