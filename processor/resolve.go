package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// NamespaceFB2 is FictionBook 2.0 namespace, all elements we are looking for must belong to it.
const NamespaceFB2 = "http://www.gribuser.ru/xml/fictionbook/2.0"

const (
	pathCoverImage = "./FictionBook/description/title-info/coverpage/image"
	pathBinary     = "./FictionBook/binary[@id]"
)

// ResolveCover finds binary element holding book cover.
//
// When book declares several cover images or has several binaries with the same id the first one in document
// order is used. Only inline references ("#id") are supported.
func ResolveCover(doc *etree.Document) (*etree.Element, error) {

	href, err := coverReference(doc)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(href, "#") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, href)
	}
	return findBinary(doc, strings.TrimPrefix(href, "#"))
}

// coverReference returns value of href attribute of the first cover image.
func coverReference(doc *etree.Document) (string, error) {

	images, err := findElements(doc, pathCoverImage)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", fmt.Errorf("%w: %w", ErrNotFound, errors.New("no cover image in title-info"))
	}

	// href usually comes with xlink namespace prefix ("l:" or "xlink:"), which one does not matter
	a := images[0].SelectAttr("href")
	if a == nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, errors.New("href attribute missing"))
	}
	return a.Value, nil
}

// findBinary returns first binary element with requested id. Id is compared as is and never becomes part
// of the query text.
func findBinary(doc *etree.Document, id string) (*etree.Element, error) {

	binaries, err := findElements(doc, pathBinary)
	if err != nil {
		return nil, err
	}
	for _, el := range binaries {
		if getAttrValue(el, "id") == id {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrNotFound, fmt.Errorf("no binary with id %q", id))
}

// findElements evaluates path and keeps only matches with the whole ancestry in FictionBook namespace.
func findElements(doc *etree.Document, query string) ([]*etree.Element, error) {

	path, err := etree.CompilePath(query)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrQuery, query, err)
	}

	var res []*etree.Element
	for _, el := range doc.FindElementsPath(path) {
		if inNamespace(el, NamespaceFB2) {
			res = append(res, el)
		}
	}
	return res, nil
}

func inNamespace(el *etree.Element, ns string) bool {
	// document itself is a parent of the root element and has empty tag
	for ; el != nil && len(el.Tag) > 0; el = el.Parent() {
		if el.NamespaceURI() != ns {
			return false
		}
	}
	return true
}

// getAttrValue returns value of requested attribute or empty string.
func getAttrValue(e *etree.Element, key string) string {
	a := e.SelectAttr(key)
	if a == nil {
		return ""
	}
	return a.Value
}
