package domain

// DashboardStats are the circulation desk counters.
type DashboardStats struct {
	ActiveBooks     int64 `json:"active_books"`
	AvailableCopies int64 `json:"available_copies"`
	ActiveUsers     int64 `json:"active_users"`
	ActiveLoans     int64 `json:"active_loans"`
	OverdueLoans    int64 `json:"overdue_loans"`
	AsOf            Date  `json:"as_of"`
}

// UserActivity summarises one borrower's borrowing history.
type UserActivity struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	Role        Role   `json:"role"`
	TotalLoans  int64  `json:"total_loans"`
	ActiveLoans int64  `json:"active_loans"`
	TotalFines  Money  `json:"total_fines"`
}

// BorrowerNotices are the alerts shown to a borrower.
type BorrowerNotices struct {
	UserID  int64       `json:"user_id"`
	Overdue []*LoanView `json:"overdue"`
	DueSoon []*LoanView `json:"due_soon"`
	AsOf    Date        `json:"as_of"`
}
