// Package smsparser pulls payment fields out of free-text bank SMS.
//
// Parsing is an ordered list of pure extractors. Each one receives the
// partial Result built so far and returns an updated copy; an extractor only
// touches a field when its pattern matches. Extractors run in ascending
// Priority, so provider specific patterns (higher priority) refine what the
// generic ones found.
package smsparser

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriorityGeneric  = 10
	PriorityProvider = 100

	DefaultCurrency = "PKR"
	DefaultTimeZone = "Asia/Karachi"
)

// Result is the partial outcome of a parse. Empty strings and an invalid
// Amount mean "not found".
type Result struct {
	Amount        decimal.NullDecimal
	Currency      string
	TransactionID string
	PaidAt        *time.Time
	SenderName    string
	SenderPhone   string
}

// HasAmount reports whether a positive amount was extracted.
func (r Result) HasAmount() bool {
	return r.Amount.Valid && r.Amount.Decimal.IsPositive()
}

type Extractor struct {
	Name     string
	Priority int
	Apply    func(text string, r Result) Result
}

type Parser struct {
	extractors []Extractor
}

// New builds a parser from the default extractors plus any extra ones.
// Timestamps without a zone are read in loc and stored in UTC.
func New(loc *time.Location, extra ...Extractor) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	all := append(DefaultExtractors(loc), extra...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority < all[j].Priority })
	return &Parser{extractors: all}
}

// Parse never fails; missing fields are left empty and the caller decides.
func (p *Parser) Parse(text string) Result {
	var r Result
	for _, ex := range p.extractors {
		r = ex.Apply(text, r)
	}
	return r
}

// Order lists extractor names in the order they run.
func (p *Parser) Order() []string {
	names := make([]string, len(p.extractors))
	for i, ex := range p.extractors {
		names[i] = ex.Name
	}
	return names
}

var (
	amountRe   = regexp.MustCompile(`(?i)(PKR|Rs\.?)\s+([0-9,]+(?:\.[0-9]{1,2})?)`)
	txnRe      = regexp.MustCompile(`(?i)(Txn\s*ID|Transaction\s*ID|Ref(?:erence)?\s*#?|Reference|RRN)[\s:\-]*([A-Z0-9\-]{6,})`)
	dateTimeRe = regexp.MustCompile(`(?:(\d{2}/\d{2}/\d{4})|(\d{4}-\d{2}-\d{2}))[ T]?(\d{2}:\d{2})(?::\d{2})?`)
	senderRe   = regexp.MustCompile(`(?i)from\s+([A-Za-z][^\.,\n]*?)(?:\s+A/C\b|\s+via\b|\s+on\b|,|\.|$)`)
	phoneRe    = regexp.MustCompile(`(\+?92|0)?3\d{2}-?\d{7}`)

	// HBL / Raast
	hblTxnRe      = regexp.MustCompile(`(?i)TXN\s*ID\s*([A-Za-z0-9]+)`)
	hblDateTimeRe = regexp.MustCompile(`(?i)\bon\s*(\d{2}/\d{2}/\d{4})\s*(\d{2}:\d{2}:\d{2})`)
	hblSenderRe   = regexp.MustCompile(`(?i)received\s+from\s+(.+?)(?:\s+A/C\b|\s+via\b|\s+on\b|,|\.|$)`)

	referenceRe = regexp.MustCompile(`WTU\d+`)
)

var dateTimeLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func DefaultExtractors(loc *time.Location) []Extractor {
	return []Extractor{
		{Name: "amount", Priority: PriorityGeneric, Apply: extractAmount},
		{Name: "transaction_id", Priority: PriorityGeneric + 10, Apply: extractTransactionID},
		{Name: "paid_at", Priority: PriorityGeneric + 20, Apply: dateTimeExtractor(loc)},
		{Name: "sender_name", Priority: PriorityGeneric + 30, Apply: extractSender},
		{Name: "sender_phone", Priority: PriorityGeneric + 40, Apply: extractPhone},
		{Name: "hbl_transaction_id", Priority: PriorityProvider + 10, Apply: extractHBLTransactionID},
		{Name: "hbl_paid_at", Priority: PriorityProvider + 20, Apply: hblDateTimeExtractor(loc)},
		{Name: "hbl_sender_name", Priority: PriorityProvider + 30, Apply: extractHBLSender},
	}
}

func extractAmount(text string, r Result) Result {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return r
	}
	r.Currency = DefaultCurrency
	amt, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err == nil {
		r.Amount = decimal.NewNullDecimal(amt)
	}
	return r
}

func extractTransactionID(text string, r Result) Result {
	if m := txnRe.FindStringSubmatch(text); m != nil {
		r.TransactionID = strings.TrimSpace(m[2])
	}
	return r
}

func dateTimeExtractor(loc *time.Location) func(string, Result) Result {
	return func(text string, r Result) Result {
		m := dateTimeRe.FindString(text)
		if m == "" {
			return r
		}
		raw := strings.Replace(m, "T", " ", 1)
		for _, layout := range dateTimeLayouts {
			if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
				utc := t.UTC()
				r.PaidAt = &utc
				break
			}
		}
		return r
	}
}

func extractSender(text string, r Result) Result {
	if m := senderRe.FindStringSubmatch(text); m != nil {
		r.SenderName = strings.TrimSpace(m[1])
	}
	return r
}

func extractPhone(text string, r Result) Result {
	if m := phoneRe.FindString(text); m != "" {
		r.SenderPhone = m
	}
	return r
}

func extractHBLTransactionID(text string, r Result) Result {
	if m := hblTxnRe.FindStringSubmatch(text); m != nil {
		r.TransactionID = strings.TrimSpace(m[1])
	}
	return r
}

func hblDateTimeExtractor(loc *time.Location) func(string, Result) Result {
	return func(text string, r Result) Result {
		m := hblDateTimeRe.FindStringSubmatch(text)
		if m == nil {
			return r
		}
		if t, err := time.ParseInLocation("02/01/2006 15:04:05", m[1]+" "+m[2], loc); err == nil {
			utc := t.UTC()
			r.PaidAt = &utc
		}
		return r
	}
}

func extractHBLSender(text string, r Result) Result {
	if m := hblSenderRe.FindStringSubmatch(text); m != nil {
		r.SenderName = strings.TrimSpace(m[1])
	}
	return r
}

// ExtractReference returns the WTU reference embedded in a bank transaction
// id, or "".
func ExtractReference(transactionID string) string {
	return referenceRe.FindString(transactionID)
}

// LoadLocation resolves an IANA zone name, falling back to a fixed UTC+5
// zone when tzdata is not available.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimeZone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("PKT", 5*60*60)
}
