// Package settlement decodes and validates the settlement documents carried
// by queue messages.
package settlement

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
)

// KindRefund is the report kind of employer refund settlements.
const KindRefund = "refusjon"

// Decoder turns a raw payload into a validated Settlement.
type Decoder interface {
	Decode(payload []byte) (*Settlement, error)
}

// Registry selects a Decoder by the order's declared kind.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry returns a registry with the built-in decoders.
func NewRegistry() *Registry {
	r := &Registry{decoders: map[string]Decoder{}}
	r.Register(KindRefund, DocumentDecoder{Kind: KindRefund})
	return r
}

// Register adds or replaces the decoder for kind.
func (r *Registry) Register(kind string, d Decoder) {
	r.decoders[kind] = d
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.decoders))
	for k := range r.decoders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Decode decodes payload with the decoder registered for kind.
func (r *Registry) Decode(kind string, payload []byte) (*Settlement, error) {
	d, ok := r.decoders[kind]
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown report kind %q", kind))
	}
	return d.Decode(payload)
}

// DocumentDecoder decodes the JSON Document format.
type DocumentDecoder struct {
	Kind string
}

// Decode parses payload, checks it against the document schema and then
// applies the business rules.
func (d DocumentDecoder) Decode(payload []byte) (*Settlement, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, apperror.ErrMalformed.WithInternal(err)
	}

	rs, err := resolved()
	if err != nil {
		return nil, apperror.ErrInternal.WithMessage("document schema").WithInternal(err)
	}
	if err := rs.Validate(raw); err != nil {
		return nil, apperror.NewValidation("document structure is invalid").WithInternal(err)
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, apperror.ErrMalformed.WithInternal(err)
	}
	return Validate(d.Kind, &doc)
}

// Validate applies the business rules to a structurally valid document.
func Validate(kind string, doc *Document) (*Settlement, error) {
	h := doc.Header

	total, err := ParseAmount(h.TotalAmount.String())
	if err != nil {
		return nil, apperror.NewValidation("header.totalAmount: " + err.Error())
	}
	valueDate, err := time.Parse(dateLayout, h.ValueDate)
	if err != nil {
		return nil, apperror.NewValidation("header.valueDate: " + err.Error())
	}
	if !validOrgNumber(h.OrgNumber) {
		return nil, apperror.NewValidation(fmt.Sprintf("header.orgNumber %q is not a valid organisation number", h.OrgNumber))
	}
	if h.LineCount != len(doc.Lines) {
		return nil, apperror.NewValidation(fmt.Sprintf("header.lineCount is %d but document has %d lines", h.LineCount, len(doc.Lines))).
			WithDetails(map[string]any{"lineCount": h.LineCount, "lines": len(doc.Lines)})
	}

	s := &Settlement{
		Kind:        kind,
		OrgNumber:   h.OrgNumber,
		BankAccount: h.BankAccount,
		Total:       total,
		ValueDate:   valueDate,
		Lines:       make([]SettlementLine, 0, len(doc.Lines)),
	}

	var sum Amount
	for i, l := range doc.Lines {
		line, err := validateLine(i, l)
		if err != nil {
			return nil, err
		}
		var ok bool
		if sum, ok = sum.Add(line.Amount); !ok {
			return nil, apperror.NewValidation(fmt.Sprintf("sum of lines overflows at lines[%d]", i))
		}
		s.Lines = append(s.Lines, line)
	}

	if sum != total {
		return nil, apperror.NewValidation(fmt.Sprintf("header.totalAmount %s does not match sum of lines %s", total, sum)).
			WithDetails(map[string]any{"totalAmount": total.String(), "sumOfLines": sum.String()})
	}
	return s, nil
}

func validateLine(i int, l Line) (SettlementLine, error) {
	field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }

	amount, err := ParseAmount(l.Amount.String())
	if err != nil {
		return SettlementLine{}, apperror.NewValidation(field("amount") + ": " + err.Error())
	}
	from, err := time.Parse(dateLayout, l.PeriodFrom)
	if err != nil {
		return SettlementLine{}, apperror.NewValidation(field("periodFrom") + ": " + err.Error())
	}
	to, err := time.Parse(dateLayout, l.PeriodTo)
	if err != nil {
		return SettlementLine{}, apperror.NewValidation(field("periodTo") + ": " + err.Error())
	}
	if to.Before(from) {
		return SettlementLine{}, apperror.NewValidation(field("periodTo") + " is before periodFrom")
	}

	return SettlementLine{
		OrgSubUnit:   l.OrgSubUnit,
		PersonID:     l.PersonID,
		Amount:       amount,
		PeriodFrom:   from,
		PeriodTo:     to,
		CategoryCode: l.CategoryCode,
	}, nil
}

// validOrgNumber checks that s is a nine digit organisation number.
func validOrgNumber(s string) bool {
	return len(s) == 9 && digitsOnly(s)
}
