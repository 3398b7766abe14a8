package agents

import "github.com/shopspring/decimal"

// Account is a cash and position ledger kept in decimal so repeated small
// trades and dividend credits do not accumulate float drift.
type Account struct {
	cash     decimal.Decimal
	position decimal.Decimal
}

// NewAccount opens a ledger with the given balances.
func NewAccount(cash, position float64) Account {
	return Account{
		cash:     decimal.NewFromFloat(cash),
		position: decimal.NewFromFloat(position),
	}
}

// Cash returns the cash balance.
func (a *Account) Cash() float64 {
	return a.cash.InexactFloat64()
}

// Position returns the units held.
func (a *Account) Position() float64 {
	return a.position.InexactFloat64()
}

// CanAfford reports whether qty units at price fit in the cash balance.
func (a *Account) CanAfford(qty, price float64) bool {
	cost := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	return cost.LessThanOrEqual(a.cash)
}

// Buy debits qty*price and credits qty units. It refuses a purchase the
// cash balance cannot cover.
func (a *Account) Buy(qty, price float64) bool {
	if qty <= 0 {
		return false
	}
	q := decimal.NewFromFloat(qty)
	cost := q.Mul(decimal.NewFromFloat(price))
	if cost.GreaterThan(a.cash) {
		return false
	}
	a.cash = a.cash.Sub(cost)
	a.position = a.position.Add(q)
	return true
}

// Sell sells up to qty units at price and returns the quantity sold, which
// is capped at the current position.
func (a *Account) Sell(qty, price float64) float64 {
	if qty <= 0 || !a.position.IsPositive() {
		return 0
	}
	q := decimal.NewFromFloat(qty)
	if q.GreaterThan(a.position) {
		q = a.position
	}
	a.cash = a.cash.Add(q.Mul(decimal.NewFromFloat(price)))
	a.position = a.position.Sub(q)
	return q.InexactFloat64()
}

// Credit adds amount to the cash balance.
func (a *Account) Credit(amount float64) {
	a.cash = a.cash.Add(decimal.NewFromFloat(amount))
}

// PayDividend credits perUnit for every unit held. Short or flat positions
// receive nothing.
func (a *Account) PayDividend(perUnit float64) {
	if !a.position.IsPositive() {
		return
	}
	a.cash = a.cash.Add(a.position.Mul(decimal.NewFromFloat(perUnit)))
}
