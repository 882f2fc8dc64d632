package core

// ExportHeader is the first row of every ledger export.
var ExportHeader = []string{"Date", "Category", "Description", "Credited", "Debited", "Balance", "Notes"}

// UncategorizedLabel stands in for a missing category name in exports.
const UncategorizedLabel = "Uncategorized"

// ExportRecord renders t in ExportHeader column order.
func (t Transaction) ExportRecord() []string {
	category := t.CategoryName
	if category == "" {
		category = UncategorizedLabel
	}
	return []string{
		t.Date.String(),
		category,
		t.Description,
		t.Credited.String(),
		t.Debited.String(),
		t.Balance.String(),
		t.Notes,
	}
}
