package settlement

import (
	"encoding/json"
	"time"
)

// Document is the wire format of a queue message.
type Document struct {
	Header Header `json:"header"`
	Lines  []Line `json:"lines"`
}

// Header is the order-level part of a Document.
type Header struct {
	OrgNumber   string      `json:"orgNumber"`
	BankAccount string      `json:"bankAccount"`
	TotalAmount json.Number `json:"totalAmount"`
	ValueDate   string      `json:"valueDate"`
	LineCount   int         `json:"lineCount"`
}

// Line is one refund line of a Document.
type Line struct {
	OrgSubUnit   string      `json:"orgSubUnit"`
	PersonID     string      `json:"personId"`
	Amount       json.Number `json:"amount"`
	PeriodFrom   string      `json:"periodFrom"`
	PeriodTo     string      `json:"periodTo"`
	CategoryCode string      `json:"categoryCode"`
}

// Settlement is a decoded and validated order.
type Settlement struct {
	Kind        string
	OrgNumber   string
	BankAccount string
	Total       Amount
	ValueDate   time.Time
	Lines       []SettlementLine
}

// SettlementLine is a validated Line.
type SettlementLine struct {
	OrgSubUnit   string
	PersonID     string
	Amount       Amount
	PeriodFrom   time.Time
	PeriodTo     time.Time
	CategoryCode string
}

const dateLayout = "2006-01-02"
