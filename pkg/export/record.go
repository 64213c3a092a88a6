// Package export turns a day of POS activity into flat accounting records
// and writes them to a sink.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/posbridge/posbridge/pkg/pos"
)

// Record is one accounting row.
type Record struct {
	Branch       string  `json:"branch"`
	Account      string  `json:"account"`
	Description  string  `json:"description"`
	RefNumber    string  `json:"ref_number"`
	Quantity     float64 `json:"quantity"`
	Debit        float64 `json:"debit"`
	Credit       float64 `json:"credit"`
	Memo         string  `json:"memo"`
	Counterparty string  `json:"counterparty"`
}

// Header is the CSV column order.
var Header = []string{
	"Branch", "Account", "Description", "RefNumber", "Quantity",
	"Debit", "Credit", "Memo", "Counterparty",
}

// Mapping assigns accounts to buckets.
type Mapping struct {
	// Categories maps an item category to its revenue account.
	Categories map[string]string `yaml:"categories"`

	// DefaultAccount receives categories without a mapping.
	DefaultAccount string `yaml:"default_account" validate:"required"`

	TaxAccount        string `yaml:"tax_account"`
	PrepaidAccount    string `yaml:"prepaid_account"`
	ElectronicAccount string `yaml:"electronic_account"`

	// Counterparty is written on every row.
	Counterparty string `yaml:"counterparty"`
}

func (m Mapping) account(category string) string {
	if a, ok := m.Categories[category]; ok && a != "" {
		return a
	}
	return m.DefaultAccount
}

// Day is one location's activity for one calendar day.
type Day struct {
	Branch       string
	LocationName string
	Date         time.Time
	Transactions []pos.Transaction

	// Closing holds backoffice closing-report totals, if they were fetched.
	Closing *ClosingTotals
}

// ClosingTotals are the closing-report figures that become their own rows.
type ClosingTotals struct {
	PrepaidSales       float64
	ElectronicPayments float64
}

type bucketKey struct {
	category string
	txType   string
}

type bucket struct {
	quantity float64
	amount   float64
}

// Build produces one record per (category, transaction type) bucket plus tax
// and closing rows. Output order is stable. Voided transactions are skipped.
func Build(m Mapping, day Day) []Record {
	buckets := make(map[bucketKey]*bucket)
	taxes := make(map[string]float64)

	for _, tx := range day.Transactions {
		if tx.Type == pos.TransactionVoid {
			continue
		}
		txType := tx.Type
		if txType == "" {
			txType = pos.TransactionSale
		}
		for _, item := range tx.Items {
			category := item.Category
			if category == "" {
				category = "Uncategorized"
			}
			k := bucketKey{category: category, txType: txType}
			b, ok := buckets[k]
			if !ok {
				b = &bucket{}
				buckets[k] = b
			}
			b.quantity += math.Abs(item.Quantity)
			b.amount += math.Abs(item.Total)
		}
		for _, tax := range tx.Taxes {
			sign := 1.0
			if txType == pos.TransactionRefund {
				sign = -1
			}
			taxes[tax.Name] += sign * math.Abs(tax.Amount)
		}
	}

	date := day.Date.Format("2006-01-02")
	ref := fmt.Sprintf("%s-%s", day.Branch, day.Date.Format("20060102"))
	memo := strings.TrimSpace(day.LocationName + " " + date)
	base := Record{Branch: day.Branch, RefNumber: ref, Memo: memo, Counterparty: m.Counterparty}

	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].txType < keys[j].txType
	})

	records := make([]Record, 0, len(keys)+len(taxes)+2)
	for _, k := range keys {
		b := buckets[k]
		r := base
		r.Account = m.account(k.category)
		r.Description = fmt.Sprintf("%s %s", k.category, k.txType)
		r.Quantity = round(b.quantity)
		if k.txType == pos.TransactionRefund {
			r.Debit = round(b.amount)
		} else {
			r.Credit = round(b.amount)
		}
		records = append(records, r)
	}

	taxNames := make([]string, 0, len(taxes))
	for name := range taxes {
		taxNames = append(taxNames, name)
	}
	sort.Strings(taxNames)
	for _, name := range taxNames {
		amount := round(taxes[name])
		if amount == 0 {
			continue
		}
		r := base
		r.Account = firstNonEmpty(m.TaxAccount, m.DefaultAccount)
		r.Description = "Tax " + name
		if amount > 0 {
			r.Credit = amount
		} else {
			r.Debit = -amount
		}
		records = append(records, r)
	}

	if day.Closing != nil {
		if v := round(day.Closing.PrepaidSales); v != 0 {
			r := base
			r.Account = firstNonEmpty(m.PrepaidAccount, m.DefaultAccount)
			r.Description = "Prepaid sales"
			r.Credit = v
			records = append(records, r)
		}
		if v := round(day.Closing.ElectronicPayments); v != 0 {
			r := base
			r.Account = firstNonEmpty(m.ElectronicAccount, m.DefaultAccount)
			r.Description = "Electronic payments"
			r.Debit = v
			records = append(records, r)
		}
	}

	return records
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Branch,
			r.Account,
			r.Description,
			r.RefNumber,
			formatAmount(r.Quantity),
			formatAmount(r.Debit),
			formatAmount(r.Credit),
			r.Memo,
			r.Counterparty,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName is the artifact name for one branch and day.
func FileName(branch string, day time.Time) string {
	return fmt.Sprintf("%s_%s.csv", branch, day.Format("2006-01-02"))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
