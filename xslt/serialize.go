package xslt

import (
	"fmt"
	"io"

	"github.com/midbel/angle/xml"
)

type Serializer interface {
	Serialize(io.Writer, *xml.Document) error
}

// NewSerializer returns the serializer for the method of out.
func NewSerializer(out Output) (Serializer, error) {
	switch out.Method {
	case MethodXML, "":
		return xmlSerializer{Output: out}, nil
	case MethodHTML:
		return htmlSerializer{Output: out}, nil
	case MethodText:
		return textSerializer{}, nil
	default:
		return nil, fmt.Errorf("%s: output method not supported", out.Method)
	}
}

type textSerializer struct{}

func (textSerializer) Serialize(w io.Writer, doc *xml.Document) error {
	_, err := io.WriteString(w, doc.Value())
	return err
}

type xmlSerializer struct {
	Output
}

func (s xmlSerializer) Serialize(w io.Writer, doc *xml.Document) error {
	writer := xml.NewWriter(w)
	if !s.Indent {
		writer.WriterOptions |= xml.OptionCompact
	}
	if s.OmitProlog {
		writer.WriterOptions |= xml.OptionNoProlog
	}
	doc.Version = s.Version
	doc.Standalone = s.Standalone
	return writer.Write(doc)
}

type htmlSerializer struct {
	Output
}

func (s htmlSerializer) Serialize(w io.Writer, doc *xml.Document) error {
	writer := xml.NewWriter(w)
	writer.WriterOptions |= xml.OptionHTML | xml.OptionNoProlog
	if !s.Indent {
		writer.WriterOptions |= xml.OptionCompact
	}
	return writer.Write(doc)
}
