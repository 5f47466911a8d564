package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// LoadError reports a source file that could not be turned into text.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Content is the text extracted from a source file.
type Content struct {
	Text  string
	Title string // Document title, if the format has one
}

// Loader extracts text from a source file.
type Loader interface {
	Load(ctx context.Context, path string) (*Content, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) (*Content, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) (*Content, error) {
	return f(ctx, path)
}

// ExtensionLoader dispatches on file extension, falling back to plain text.
type ExtensionLoader struct {
	byExt    map[string]Loader
	fallback Loader
}

// NewLoader returns the default loader: HTML via goquery, PDF via
// ledongthuc/pdf, everything else as UTF-8 text.
func NewLoader() *ExtensionLoader {
	html := LoaderFunc(LoadHTML)
	return &ExtensionLoader{
		byExt: map[string]Loader{
			".html": html,
			".htm":  html,
			".pdf":  LoaderFunc(LoadPDF),
		},
		fallback: LoaderFunc(LoadText),
	}
}

// Register sets the loader used for ext.
func (l *ExtensionLoader) Register(ext string, loader Loader) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	l.byExt[strings.ToLower(ext)] = loader
}

// Load extracts text from path. Every failure is a *LoadError.
func (l *ExtensionLoader) Load(ctx context.Context, path string) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ProcessedSuffix)))
	loader, ok := l.byExt[ext]
	if !ok {
		loader = l.fallback
	}

	content, err := loader.Load(ctx, path)
	if err != nil {
		if _, isLoadErr := err.(*LoadError); isLoadErr {
			return nil, err
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	if strings.TrimSpace(content.Text) == "" {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("no text content")}
	}
	return content, nil
}

// blockSelector lists the elements whose text becomes a paragraph.
const blockSelector = "h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,td,th,dt,dd,figcaption"

var whitespaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)

// LoadHTML extracts the readable text of an HTML file, one paragraph per
// block element.
func LoadHTML(ctx context.Context, path string) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseHTML(f)
}

func parseHTML(r io.Reader) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script,style,noscript,template,nav,footer").Remove()

	title := normalizeSpace(doc.Find("title").First().Text())

	var paragraphs []string
	doc.Find("body").Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		// Nested blocks are emitted by their outermost ancestor
		if sel.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := normalizeSpace(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	text := strings.Join(paragraphs, "\n\n")
	if text == "" {
		text = normalizeSpace(doc.Find("body").Text())
	}

	return &Content{Text: text, Title: title}, nil
}

// normalizeSpace collapses runs of horizontal whitespace and trims lines.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// LoadPDF extracts the plain text of a PDF file.
func LoadPDF(ctx context.Context, path string) (*Content, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	textReader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return nil, fmt.Errorf("failed to read PDF text: %w", err)
	}

	return &Content{Text: strings.TrimSpace(buf.String())}, nil
}

// LoadText reads a UTF-8 text file.
func LoadText(ctx context.Context, path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinaryContent(data) {
		return nil, fmt.Errorf("binary content")
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	return &Content{Text: string(data)}, nil
}
