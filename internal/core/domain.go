package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	MaxDescriptionLength = 255
	MaxNotesLength       = 1000
	MaxCategoryName      = 100

	DefaultCategoryColor = "#007bff"
	DefaultCategoryIcon  = "category"
)

// Date is a calendar day without time, stored at UTC midnight.
type Date struct {
	time.Time
}

// NewDate truncates to the calendar day of (y, m, d).
func NewDate(y int, m time.Month, d int) Date {
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day t falls on in its own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, Validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string { return d.Format(DateLayout) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int { return d.Time.Compare(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Validationf("date must be a string")
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ChronoKey is the total order of a user's ledger: transaction date, then
// store-assigned creation time.
type ChronoKey struct {
	Date      Date
	CreatedAt time.Time
}

// Compare returns -1, 0 or +1.
func (k ChronoKey) Compare(o ChronoKey) int {
	if c := k.Date.Compare(o.Date); c != 0 {
		return c
	}
	return k.CreatedAt.Compare(o.CreatedAt)
}

func (k ChronoKey) Less(o ChronoKey) bool { return k.Compare(o) < 0 }

func (k ChronoKey) String() string {
	return fmt.Sprintf("%s@%s", k.Date, k.CreatedAt.UTC().Format(time.RFC3339Nano))
}

// Transaction is one credit or debit on a user's ledger. Balance is derived
// and maintained by the ledger engine.
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	CategoryID  int64     `json:"category_id"`
	Date        Date      `json:"transaction_date"`
	Description string    `json:"description"`
	Credited    Money     `json:"credited"`
	Debited     Money     `json:"debited"`
	Balance     Money     `json:"balance"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Active      bool      `json:"-"`

	// Joined from categories on the read side.
	CategoryName  string `json:"category_name,omitempty"`
	CategoryColor string `json:"category_color,omitempty"`
	CategoryIcon  string `json:"category_icon,omitempty"`
}

// Delta is the signed contribution to the running total.
func (t Transaction) Delta() Money { return t.Credited.Sub(t.Debited) }

func (t Transaction) Key() ChronoKey {
	return ChronoKey{Date: t.Date, CreatedAt: t.CreatedAt}
}

// TransactionInput is the user-supplied part of a transaction, shared by
// add and update.
type TransactionInput struct {
	CategoryID  int64  `json:"category_id"`
	Date        Date   `json:"transaction_date"`
	Description string `json:"description"`
	Credited    Money  `json:"credited"`
	Debited     Money  `json:"debited"`
	Notes       string `json:"notes"`
}

// Validate checks required fields and the exactly-one-side amount rule.
func (in TransactionInput) Validate() error {
	if in.CategoryID <= 0 {
		return Validationf("category_id is required")
	}
	if in.Date.IsZero() {
		return Validationf("transaction_date is required")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return Validationf("description is required")
	}
	if len(desc) > MaxDescriptionLength {
		return Validationf("description too long (max %d characters)", MaxDescriptionLength)
	}
	if len(in.Notes) > MaxNotesLength {
		return Validationf("notes too long (max %d characters)", MaxNotesLength)
	}
	if in.Credited.IsNegative() || in.Debited.IsNegative() {
		return Validationf("amounts cannot be negative")
	}
	if in.Credited.Cmp(MaxAmount) > 0 || in.Debited.Cmp(MaxAmount) > 0 {
		return Validationf("amount exceeds the maximum of %s", MaxAmount)
	}
	switch {
	case in.Credited.IsZero() && in.Debited.IsZero():
		return Validationf("either credited or debited amount must be greater than 0")
	case in.Credited.IsPositive() && in.Debited.IsPositive():
		return Validationf("only one of credited or debited may be greater than 0")
	}
	return nil
}

// Apply copies the input onto t, leaving identity and derived fields.
func (in TransactionInput) Apply(t Transaction) Transaction {
	t.CategoryID = in.CategoryID
	t.Date = in.Date
	t.Description = strings.TrimSpace(in.Description)
	t.Credited = in.Credited
	t.Debited = in.Debited
	t.Notes = strings.TrimSpace(in.Notes)
	return t
}

// Category groups transactions. UserID nil marks a global category.
type Category struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	Active      bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsGlobal reports whether the category is shared by all users.
func (c Category) IsGlobal() bool { return c.UserID == nil }

type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

// Normalize trims fields and fills display defaults.
func (in CategoryInput) Normalize() CategoryInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Color = strings.TrimSpace(in.Color)
	in.Icon = strings.TrimSpace(in.Icon)
	if in.Color == "" {
		in.Color = DefaultCategoryColor
	}
	if in.Icon == "" {
		in.Icon = DefaultCategoryIcon
	}
	return in
}

func (in CategoryInput) Validate() error {
	if in.Name == "" {
		return Validationf("category name is required")
	}
	if len(in.Name) > MaxCategoryName {
		return Validationf("category name too long (max %d characters)", MaxCategoryName)
	}
	if !isHexColor(in.Color) {
		return Validationf("invalid color %q: expected #RRGGBB", in.Color)
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// User is an account holder. PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Active       bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
