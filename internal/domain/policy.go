package domain

import "fmt"

// Default circulation rules.
const (
	DefaultLoanPeriodDays       = 14
	DefaultWarningDays          = 2
	DefaultFinePerDay     Money = 100
)

// CirculationPolicy holds the date and fine rules of the ledger.
// All methods are pure.
type CirculationPolicy struct {
	// LoanPeriodDays is added to the issue date to get the due date.
	LoanPeriodDays int

	// FinePerDay is charged for every day past the due date.
	FinePerDay Money

	// WarningDays is how close to the due date a loan counts as due soon.
	WarningDays int
}

// DefaultCirculationPolicy returns 14 days, 1.00 per day, 2 warning days.
func DefaultCirculationPolicy() CirculationPolicy {
	return CirculationPolicy{
		LoanPeriodDays: DefaultLoanPeriodDays,
		FinePerDay:     DefaultFinePerDay,
		WarningDays:    DefaultWarningDays,
	}
}

// Validate checks the policy values.
func (p CirculationPolicy) Validate() error {
	if p.LoanPeriodDays < 0 {
		return fmt.Errorf("%w: loan period must not be negative", ErrValidation)
	}
	if p.FinePerDay < 0 {
		return fmt.Errorf("%w: fine per day must not be negative", ErrValidation)
	}
	if p.WarningDays < 0 {
		return fmt.Errorf("%w: warning days must not be negative", ErrValidation)
	}
	return nil
}

// ComputeDueDate returns issueDate plus the loan period.
func (p CirculationPolicy) ComputeDueDate(issueDate Date) Date {
	return issueDate.AddDays(p.LoanPeriodDays)
}

// OverdueDays returns the whole days asOf lies past dueDate, or 0.
func (p CirculationPolicy) OverdueDays(dueDate, asOf Date) int {
	days := dueDate.DaysUntil(asOf)
	if days < 0 {
		return 0
	}
	return days
}

// CalculateFine returns the fine for a return on returnDate.
// It is zero when returnDate is on or before dueDate.
func (p CirculationPolicy) CalculateFine(dueDate, returnDate Date) Money {
	return p.FinePerDay.Times(p.OverdueDays(dueDate, returnDate))
}

// State classifies a loan as of today. Returned wins over everything,
// then Overdue, then DueSoon.
func (p CirculationPolicy) State(l *Loan, today Date) LoanState {
	if l.Returned {
		return LoanReturned
	}
	if today.After(l.DueDate) {
		return LoanOverdue
	}
	if today.DaysUntil(l.DueDate) <= p.WarningDays {
		return LoanDueSoon
	}
	return LoanActive
}

// View evaluates state, overdue days and fine of a loan as of today.
// Returned loans are evaluated at their return date with the stored fine.
func (p CirculationPolicy) View(d *LoanDetails, today Date) *LoanView {
	v := &LoanView{
		LoanDetails: *d,
		State:       p.State(&d.Loan, today),
		AsOf:        today,
	}
	if d.Returned && d.ReturnDate != nil {
		v.DaysOverdue = p.OverdueDays(d.DueDate, *d.ReturnDate)
		v.CurrentFine = d.FineAmount
		return v
	}
	v.DaysOverdue = p.OverdueDays(d.DueDate, today)
	v.CurrentFine = p.CalculateFine(d.DueDate, today)
	return v
}
