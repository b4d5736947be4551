package state

import (
	"fmt"

	"DroughtLedger/internal/domain"
)

// FundPool tracks the aggregate premium pool balance. Credits come from
// accepted premiums, debits from executed payouts and authority withdrawals.
// Not thread-safe — only accessed from the single-threaded engine, which is
// what makes the balance-check-then-debit pairing atomic.
type FundPool struct {
	balance int64
}

func NewFundPool() *FundPool {
	return &FundPool{}
}

// Credit adds an accepted premium to the pool.
func (fp *FundPool) Credit(amount int64) {
	fp.balance += amount
}

// Debit removes a payout from the pool. The caller must have checked
// eligibility in the same engine command; Debit still refuses to overdraw
// so a broken caller cannot push the pool negative.
func (fp *FundPool) Debit(amount int64) error {
	if amount > fp.balance {
		return fmt.Errorf("pool overdraw: have=%d, need=%d", fp.balance, amount)
	}
	fp.balance -= amount
	return nil
}

// WithdrawAll drains the entire balance and returns the amount moved.
func (fp *FundPool) WithdrawAll() (int64, error) {
	if fp.balance <= 0 {
		return 0, domain.Errorf(domain.CodeNothingToWithdraw, "pool balance is %d", fp.balance)
	}
	amount := fp.balance
	fp.balance = 0
	return amount, nil
}

// Balance returns the current pool balance.
func (fp *FundPool) Balance() int64 {
	return fp.balance
}

// Restore sets the balance directly during snapshot restore.
func (fp *FundPool) Restore(balance int64) {
	fp.balance = balance
}
