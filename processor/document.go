package processor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// ParseContent builds document tree from book content. No validation is performed.
func ParseContent(buf []byte) (*etree.Document, error) {

	doc := etree.NewDocument()

	enc := detectUTF(buf)
	if enc == encUnknown {
		// no BOM - most likely not Unicode, trust XML declaration
		doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	} else {
		doc.ReadSettings.CharsetReader = unicodeCharsetReader
	}

	if _, err := doc.ReadFrom(selectReader(bytes.NewReader(buf), enc)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	switch n := len(doc.ChildElements()); {
	case n == 0:
		return nil, fmt.Errorf("%w: %w", ErrParse, errors.New("empty document"))
	case n > 1:
		return nil, fmt.Errorf("%w: %w", ErrParse, errors.New("extra content at the end of the document"))
	}
	for _, t := range doc.Child {
		if cd, ok := t.(*etree.CharData); ok && !cd.IsWhitespace() {
			return nil, fmt.Errorf("%w: %w", ErrParse, errors.New("text outside of the root element"))
		}
	}
	return doc, nil
}
