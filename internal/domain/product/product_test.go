package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalPrice_NoDiscount(t *testing.T) {
	p := Product{UnitPrice: decimal.RequireFromString("150000")}
	assert.True(t, decimal.RequireFromString("150000").Equal(p.FinalPrice()))
}

func TestFinalPrice_WithDiscount(t *testing.T) {
	p := Product{
		UnitPrice:       decimal.RequireFromString("150000"),
		DiscountPercent: 20,
	}
	assert.True(t, decimal.RequireFromString("120000").Equal(p.FinalPrice()))
}

func TestFinalPrice_RoundsToWholeRials(t *testing.T) {
	p := Product{
		UnitPrice:       decimal.RequireFromString("99999"),
		DiscountPercent: 33,
	}
	// 99999 * 0.67 = 66999.33 -> 66999
	assert.True(t, decimal.RequireFromString("66999").Equal(p.FinalPrice()))
}

func TestSetQuantity_TogglesAvailability(t *testing.T) {
	p := Product{Quantity: 5, Available: true}

	p.SetQuantity(0)
	assert.False(t, p.Available)
	assert.Equal(t, 0, p.Quantity)

	p.SetQuantity(3)
	assert.True(t, p.Available)
}

func TestValidate(t *testing.T) {
	valid := Product{
		Title:     "keyboard",
		Quantity:  10,
		UnitPrice: decimal.NewFromInt(500000),
	}
	require.NoError(t, valid.Validate())

	overCap := valid
	overCap.Quantity = MaxStock + 1
	assert.Error(t, overCap.Validate())

	badDiscount := valid
	badDiscount.DiscountPercent = 101
	assert.Error(t, badDiscount.Validate())

	negativePrice := valid
	negativePrice.UnitPrice = decimal.NewFromInt(-1)
	assert.Error(t, negativePrice.Validate())
}
