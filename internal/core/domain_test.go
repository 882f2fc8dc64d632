package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() TransactionInput {
	return TransactionInput{
		CategoryID:  1,
		Date:        NewDate(2024, time.January, 1),
		Description: "Salary",
		Credited:    MustParseMoney("100"),
	}
}

func TestTransactionInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TransactionInput)
		wantErr string
	}{
		{"valid credit", func(*TransactionInput) {}, ""},
		{"valid debit", func(in *TransactionInput) {
			in.Credited = Zero
			in.Debited = MustParseMoney("30")
		}, ""},
		{"missing category", func(in *TransactionInput) { in.CategoryID = 0 }, "category_id is required"},
		{"missing date", func(in *TransactionInput) { in.Date = Date{} }, "transaction_date is required"},
		{"blank description", func(in *TransactionInput) { in.Description = "   " }, "description is required"},
		{"long description", func(in *TransactionInput) {
			in.Description = strings.Repeat("x", MaxDescriptionLength+1)
		}, "description too long"},
		{"long notes", func(in *TransactionInput) {
			in.Notes = strings.Repeat("n", MaxNotesLength+1)
		}, "notes too long"},
		{"both zero", func(in *TransactionInput) { in.Credited = Zero }, "must be greater than 0"},
		{"both positive", func(in *TransactionInput) { in.Debited = MustParseMoney("1") }, "only one of"},
		{"negative credit", func(in *TransactionInput) { in.Credited = MustParseMoney("-5") }, "cannot be negative"},
		{"credit at maximum", func(in *TransactionInput) { in.Credited = MaxAmount }, ""},
		{"credit above maximum", func(in *TransactionInput) {
			in.Credited = MustParseMoney("184467440737095517.16")
		}, "exceeds the maximum"},
		{"debit above maximum", func(in *TransactionInput) {
			in.Credited = Zero
			in.Debited = MaxAmount.Add(MustParseMoney("0.01"))
		}, "exceeds the maximum"},
		{"negative debit", func(in *TransactionInput) {
			in.Credited = Zero
			in.Debited = MustParseMoney("-5")
		}, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := in.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTransactionInput_Apply(t *testing.T) {
	orig := Transaction{ID: 7, UserID: 3, Balance: MustParseMoney("99"), CreatedAt: time.Unix(10, 0)}
	in := validInput()
	in.Description = "  trimmed  "
	got := in.Apply(orig)

	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, int64(3), got.UserID)
	assert.Equal(t, "trimmed", got.Description)
	assert.True(t, got.Balance.Equal(orig.Balance), "balance is derived and must not be overwritten")
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
	assert.Equal(t, "100.00", got.Delta().String())
}

func TestChronoKey_Compare(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	jan1 := NewDate(2024, time.January, 1)
	jan2 := NewDate(2024, time.January, 2)

	tests := []struct {
		a, b ChronoKey
		want int
	}{
		{ChronoKey{jan1, base}, ChronoKey{jan2, base.Add(-time.Hour)}, -1},
		{ChronoKey{jan2, base}, ChronoKey{jan1, base.Add(time.Hour)}, 1},
		{ChronoKey{jan1, base}, ChronoKey{jan1, base.Add(time.Microsecond)}, -1},
		{ChronoKey{jan1, base}, ChronoKey{jan1, base}, 0},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, tt.want < 0, tt.a.Less(tt.b))
		})
	}
}

func TestDate_JSON(t *testing.T) {
	var in TransactionInput
	require.NoError(t, json.Unmarshal([]byte(`{"transaction_date":"2024-03-05"}`), &in))
	assert.Equal(t, "2024-03-05", in.Date.String())

	err := json.Unmarshal([]byte(`{"transaction_date":"05/03/2024"}`), &in)
	assert.ErrorIs(t, err, ErrValidation)

	out, err := json.Marshal(struct {
		D Date `json:"d"`
	}{NewDate(2024, time.March, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-03-05"}`, string(out))
}

func TestCategoryInput(t *testing.T) {
	in := CategoryInput{Name: " Food "}.Normalize()
	require.NoError(t, in.Validate())
	assert.Equal(t, "Food", in.Name)
	assert.Equal(t, DefaultCategoryColor, in.Color)
	assert.Equal(t, DefaultCategoryIcon, in.Icon)

	assert.ErrorIs(t, CategoryInput{}.Normalize().Validate(), ErrValidation)
	assert.ErrorIs(t, CategoryInput{Name: "x", Color: "red"}.Validate(), ErrValidation)
	assert.NoError(t, CategoryInput{Name: "x", Color: "#A0b1C2"}.Validate())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Validationf("bad"), KindValidation},
		{fmt.Errorf("get: %w", ErrNotFound), KindNotFound},
		{ErrUnauthorized, KindUnauthorized},
		{fmt.Errorf("%w: dup", ErrConflict), KindConflict},
		{ErrKeyCollision, KindInternal},
		{fmt.Errorf("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), tt.err.Error())
	}
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrUnavailable)))
	assert.False(t, IsRetryable(ErrKeyCollision))
}

func TestTransaction_ExportRecord(t *testing.T) {
	tx := Transaction{
		Date:         NewDate(2024, time.March, 1),
		CategoryName: "Food & Dining",
		Description:  "groceries",
		Debited:      MustParseMoney("12.5"),
		Balance:      MustParseMoney("-12.5"),
		Notes:        "weekly",
	}
	assert.Equal(t, []string{"2024-03-01", "Food & Dining", "groceries", "0.00", "12.50", "-12.50", "weekly"}, tx.ExportRecord())

	tx.CategoryName = ""
	assert.Equal(t, UncategorizedLabel, tx.ExportRecord()[1])
	assert.Len(t, ExportHeader, len(tx.ExportRecord()))
}
