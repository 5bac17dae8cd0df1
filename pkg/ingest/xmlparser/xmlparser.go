// Package xmlparser reads transaction exports shaped as
//
//	<Transactions>
//	  <Transaction id="...">
//	    <TransactionDate>2024-01-01T10:00:00</TransactionDate>
//	    <PaymentDetails>
//	      <Amount>1000.00</Amount>
//	      <CurrencyCode>USD</CurrencyCode>
//	    </PaymentDetails>
//	    <Status>Approved</Status>
//	  </Transaction>
//	</Transactions>
//
// Transaction elements are collected at any depth, in document order.
package xmlparser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"txn-ingest/pkg/convert"
	"txn-ingest/pkg/ingest/errs"
	"txn-ingest/pkg/normalize"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

const transactionElement = "Transaction"

// node is one element of the parsed document.
type node struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	children []*node

	// start and end delimit the element in the normalized source.
	start, end int64
}

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// child follows a slash separated path of direct child names.
func (n *node) child(path string) (*node, bool) {
	cur := n
	for _, name := range strings.Split(path, "/") {
		var next *node
		for _, c := range cur.children {
			if c.name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// collect appends n and every descendant named name, in document order.
func (n *node) collect(name string, out []*node) []*node {
	if n.name == name {
		out = append(out, n)
	}
	for _, c := range n.children {
		out = c.collect(name, out)
	}
	return out
}

// Parse reads a whole document and returns one transaction per Transaction
// element. The document text is decoded and quote normalized before it is
// parsed. The first failing node aborts the parse and nothing is returned.
func Parse(r io.Reader) ([]record.Transaction, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc := normalize.Text(normalize.Decode(raw))

	root, err := parseTree(doc)
	if err != nil {
		return nil, errs.Malformed(err)
	}

	var out []record.Transaction
	for _, n := range root.collect(transactionElement, nil) {
		tx, err := build(n, doc[n.start:n.end])
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// parseTree checks the document is well formed with exactly one root element
// and returns that root.
func parseTree(doc string) (*node, error) {
	d := xml.NewDecoder(strings.NewReader(doc))
	d.Strict = true
	// The text is already decoded; the declared encoding is informational.
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		root  *node
		stack []*node
	)
	for {
		offset := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && root != nil {
				return nil, errors.New("document has more than one root element")
			}
			n := &node{name: t.Name.Local, attrs: t.Attr, start: offset}
			if len(stack) == 0 {
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			n := stack[len(stack)-1]
			n.end = d.InputOffset()
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				if len(strings.TrimSpace(string(t))) > 0 {
					return nil, errors.New("text outside the root element")
				}
				continue
			}
			// Text counts towards every enclosing element.
			for _, n := range stack {
				n.text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("document has no root element")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("element <%s> is not closed", stack[len(stack)-1].name)
	}
	return root, nil
}

func build(n *node, outer string) (record.Transaction, error) {
	missing := func(field string) error {
		return &errs.NodeError{Kind: errs.ErrMissingField, Field: field, Node: outer}
	}
	conversion := func(field string, cause error) error {
		return &errs.NodeError{Kind: errs.ErrFieldConversion, Field: field, Node: outer, Cause: cause}
	}

	id, ok := n.attr("id")
	if !ok {
		return record.Transaction{}, missing("id")
	}

	text := make(map[string]string, 4)
	for _, path := range []string{"TransactionDate", "PaymentDetails/Amount", "PaymentDetails/CurrencyCode", "Status"} {
		c, ok := n.child(path)
		if !ok {
			return record.Transaction{}, missing(path)
		}
		text[path] = strings.TrimSpace(c.text.String())
	}

	date, err := convert.ParseXMLDate(text["TransactionDate"])
	if err != nil {
		return record.Transaction{}, conversion("TransactionDate", err)
	}

	amount, err := convert.ParseXMLAmount(text["PaymentDetails/Amount"])
	if err != nil {
		return record.Transaction{}, conversion("PaymentDetails/Amount", err)
	}

	code, err := status.Map(text["Status"])
	if err != nil {
		return record.Transaction{}, conversion("Status", err)
	}

	tx, err := record.New(strings.TrimSpace(id), amount, text["PaymentDetails/CurrencyCode"], date, code)
	if err != nil {
		var fe *record.FieldError
		if errors.As(err, &fe) {
			return record.Transaction{}, &errs.NodeError{Kind: fe.Kind, Field: fe.Field, Node: outer, Cause: err}
		}
		return record.Transaction{}, conversion("", err)
	}
	return tx, nil
}
