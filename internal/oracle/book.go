// Package oracle turns external price feeds into integer rates and publishes them as
// immutable rate books.
package oracle

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
)

// Quote is a rate for one ordered pair.
type Quote struct {
	Base  domain.AssetID `json:"base"`
	Quote domain.AssetID `json:"quote"`
	Rate  domain.Rate    `json:"rate"`
}

type pair struct {
	base, quote domain.AssetID
}

// Book is an immutable set of rates. It implements domain.RateSource.
type Book struct {
	rates map[pair]domain.Rate
}

// NewBook builds a Book. Later quotes for the same pair win.
func NewBook(quotes []Quote) *Book {
	b := &Book{rates: make(map[pair]domain.Rate, len(quotes))}
	for _, q := range quotes {
		b.rates[pair{q.Base, q.Quote}] = q.Rate
	}
	return b
}

// Rate returns the rate for base priced in quote. When only the opposite pair is known
// its inverse is returned with the same timestamp.
func (b *Book) Rate(base, quote domain.AssetID) (domain.Rate, bool) {
	if b == nil {
		return domain.Rate{}, false
	}
	if r, ok := b.rates[pair{base, quote}]; ok {
		return r, true
	}
	r, ok := b.rates[pair{quote, base}]
	if !ok || r.Quote.IsNil() || !r.Quote.IsPositive() {
		return domain.Rate{}, false
	}
	return domain.Rate{Quote: r.Base, Base: r.Quote, Timestamp: r.Timestamp}, true
}

// Quotes returns every stored quote.
func (b *Book) Quotes() []Quote {
	if b == nil {
		return nil
	}
	out := make([]Quote, 0, len(b.rates))
	for p, r := range b.rates {
		out = append(out, Quote{Base: p.base, Quote: p.quote, Rate: r})
	}
	return out
}

// With returns a new Book with q added or replaced.
func (b *Book) With(q Quote) *Book {
	next := NewBook(b.Quotes())
	next.rates[pair{q.Base, q.Quote}] = q.Rate
	return next
}

// rateDigits is the extra precision kept when a decimal price is turned into an integer rate.
const rateDigits = 9

// RateFromPrice converts "one whole base unit costs price whole quote units" into a Rate
// over smallest units. The quote side is floored.
func RateFromPrice(price string, base, quote domain.Asset, ts time.Time) (domain.Rate, error) {
	q, err := domain.ParseUnits(price, quote.Precision+rateDigits)
	if err != nil {
		return domain.Rate{}, err
	}
	r := domain.Rate{
		Quote:     q,
		Base:      domain.Pow10(base.Precision + rateDigits),
		Timestamp: ts,
	}
	if err := r.Validate(); err != nil {
		return domain.Rate{}, err
	}
	return r, nil
}

// PriceOf renders a rate as the decimal price of one whole base unit in whole quote units.
func PriceOf(r domain.Rate, base, quote domain.Asset) string {
	v, err := domain.MulDiv(
		[]sdkmath.Int{r.Quote, base.Unit(), domain.Pow10(rateDigits)},
		[]sdkmath.Int{r.Base},
	)
	if err != nil {
		return ""
	}
	return domain.FormatUnits(v, quote.Precision+rateDigits)
}
