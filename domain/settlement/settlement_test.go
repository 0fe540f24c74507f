package settlement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
)

const validSingleLine = `{
  "header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 400.00, "valueDate": "2025-03-14", "lineCount": 1},
  "lines": [
    {"orgSubUnit": "974600020", "personId": "01017012345", "amount": 400.00, "periodFrom": "2025-02-01", "periodTo": "2025-02-28", "categoryCode": "SP"}
  ]
}`

const mismatchedTotal = `{
  "header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 9093.00, "valueDate": "2025-03-14", "lineCount": 2},
  "lines": [
    {"orgSubUnit": "974600020", "personId": "01017012345", "amount": 5000.00, "periodFrom": "2025-02-01", "periodTo": "2025-02-28", "categoryCode": "SP"},
    {"orgSubUnit": "974600020", "personId": "02028054321", "amount": 4905.00, "periodFrom": "2025-02-01", "periodTo": "2025-02-28", "categoryCode": "FP"}
  ]
}`

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "9093.00", want: 909300},
		{in: "9905", want: 990500},
		{in: "0.5", want: 50},
		{in: "-12.34", want: -1234},
		{in: "+1.01", want: 101},
		{in: "1.234", wantErr: true},
		{in: "1.", wantErr: true},
		{in: ".5", wantErr: true},
		{in: "1e3", want: 100000},
		{in: "9.093E3", want: 909300},
		{in: "15e-1", want: 150},
		{in: "-1.234e1", want: -1234},
		{in: "0.001e1", want: 1},
		{in: "1e-3", wantErr: true},
		{in: "1e", wantErr: true},
		{in: "1e99", wantErr: true},
		{in: "1e18", wantErr: true},
		{in: "", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountAdd(t *testing.T) {
	sum, ok := Amount(909300).Add(-1234)
	assert.True(t, ok)
	assert.Equal(t, Amount(908066), sum)

	_, ok = maxAmount.Add(1)
	assert.False(t, ok)
	_, ok = (-maxAmount - 1).Add(-1)
	assert.False(t, ok)
	_, ok = (-maxAmount - 1).Add(maxAmount)
	assert.True(t, ok)
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "9093.00", Amount(909300).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-12.34", Amount(-1234).String())
}

func TestDecode_ValidSingleLine(t *testing.T) {
	s, err := NewRegistry().Decode(KindRefund, []byte(validSingleLine))
	require.NoError(t, err)

	assert.Equal(t, KindRefund, s.Kind)
	assert.Equal(t, "974600019", s.OrgNumber)
	assert.Equal(t, Amount(40000), s.Total)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), s.ValueDate)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "01017012345", s.Lines[0].PersonID)
	assert.Equal(t, Amount(40000), s.Lines[0].Amount)
}

func TestDecode_TotalMismatch(t *testing.T) {
	_, err := NewRegistry().Decode(KindRefund, []byte(mismatchedTotal))
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperror.ErrValidation))
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "9093.00", appErr.Details["totalAmount"])
	assert.Equal(t, "9905.00", appErr.Details["sumOfLines"])
}

func TestDecode_SumOverflowIsRejected(t *testing.T) {
	// Two lines of 92233720368547758.00 wrap int64 øre to -16.
	line := `{"orgSubUnit": "974600020", "personId": "01017012345", "amount": 92233720368547758.00, "periodFrom": "2025-02-01", "periodTo": "2025-02-28", "categoryCode": "SP"}`
	payload := `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": -0.16, "valueDate": "2025-03-14", "lineCount": 2}, "lines": [` +
		line + `, ` + line + `]}`

	_, err := NewRegistry().Decode(KindRefund, []byte(payload))
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "overflows")
}

func TestDecode_ExponentAmounts(t *testing.T) {
	payload := `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 4E2, "valueDate": "2025-03-14", "lineCount": 1}, "lines": [
		{"orgSubUnit": "974600020", "personId": "01017012345", "amount": 4.0e2, "periodFrom": "2025-02-01", "periodTo": "2025-02-28", "categoryCode": "SP"}]}`

	s, err := NewRegistry().Decode(KindRefund, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, Amount(40000), s.Total)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := NewRegistry().Decode(KindRefund, []byte(`{"header": `))
	assert.ErrorIs(t, err, apperror.ErrMalformed)
}

func TestDecode_StructuralErrors(t *testing.T) {
	tests := map[string]string{
		"missing lines":     `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 1, "valueDate": "2025-03-14", "lineCount": 0}}`,
		"empty lines":       `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 0, "valueDate": "2025-03-14", "lineCount": 0}, "lines": []}`,
		"short org number":  `{"header": {"orgNumber": "97460", "bankAccount": "12345678901", "totalAmount": 1, "valueDate": "2025-03-14", "lineCount": 0}, "lines": []}`,
		"amount as string":  `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": "1.00", "valueDate": "2025-03-14", "lineCount": 0}, "lines": []}`,
		"fractional count":  `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 1, "valueDate": "2025-03-14", "lineCount": 1.5}, "lines": []}`,
		"not an object":     `[1, 2, 3]`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry().Decode(KindRefund, []byte(payload))
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestDecode_BusinessRules(t *testing.T) {
	line := `{"orgSubUnit": "974600020", "personId": "01017012345", "amount": 400.00, "periodFrom": "2025-02-01", "periodTo": "2025-02-28", "categoryCode": "SP"}`
	tests := map[string]string{
		"line count":   `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 400, "valueDate": "2025-03-14", "lineCount": 2}, "lines": [` + line + `]}`,
		"bad date":     `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 400, "valueDate": "2025-13-40", "lineCount": 1}, "lines": [` + line + `]}`,
		"three decimals": `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 400.001, "valueDate": "2025-03-14", "lineCount": 1}, "lines": [` + line + `]}`,
		"period reversed": `{"header": {"orgNumber": "974600019", "bankAccount": "12345678901", "totalAmount": 400, "valueDate": "2025-03-14", "lineCount": 1}, "lines": [
			{"orgSubUnit": "974600020", "personId": "01017012345", "amount": 400, "periodFrom": "2025-02-28", "periodTo": "2025-02-01", "categoryCode": "SP"}]}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry().Decode(KindRefund, []byte(payload))
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	_, err := NewRegistry().Decode("lønn", []byte(validSingleLine))
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, []string{KindRefund}, NewRegistry().Kinds())
}
