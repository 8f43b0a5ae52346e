package protect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
)

func TestClassify(t *testing.T) {
	headers := []string{
		"Product ID",
		"Product Name",
		"Product SKU",
		"Product Price",
		"Product Thumbnail",
		"Product Region",
		"Product Grape",
		"Product Description",
		"Product Description Taste",
		"Product Best In Glass",
		"Product Temperature",
		"Product Stock Quantity",
		"Product URL",
		"Product Category",
		"Variant Status",
		"EAN13",
	}

	s := protect.Classify(headers)

	protected := []string{
		"Product ID",
		"Product SKU",
		"Product Price",
		"Product Thumbnail",
		"Product Stock Quantity",
		"Product URL",
		"Product Category",
		"Variant Status",
		"EAN13",
	}
	for _, h := range protected {
		assert.Truef(t, s.Has(h), "%q should be protected", h)
	}
	for _, h := range []string{"Product Name", "Product Region", "Product Grape", "Product Description", "Product Description Taste", "Product Best In Glass", "Product Temperature"} {
		assert.Falsef(t, s.Has(h), "%q should not be protected", h)
	}
	assert.Equal(t, protected, s.Headers(), "protected headers keep table order")
	assert.Equal(t, len(protected), s.Len())
}

func TestClassify_CaseInsensitiveSubstring(t *testing.T) {
	s := protect.Classify([]string{"PRICE_EUR", "unitprice", "Image Link", "sKu"})
	assert.Equal(t, 4, s.Len())
}

func TestClassify_IsDeterministic(t *testing.T) {
	headers := []string{"Name", "Price", "Region", "Barcode"}
	a := protect.Classify(headers)
	b := protect.Classify(headers)
	assert.Equal(t, a.Headers(), b.Headers())
}

func TestClassify_Empty(t *testing.T) {
	assert.Equal(t, 0, protect.Classify(nil).Len())
	assert.Equal(t, 0, protect.Classify([]string{}).Len())
	assert.False(t, protect.Classify(nil).Has("anything"))
}

func TestClassifyWith(t *testing.T) {
	s := protect.ClassifyWith([]string{"Vintage", "Producer", "Region"}, []string{" vintage ", "", "PRODUCER"})
	assert.True(t, s.Has("Vintage"))
	assert.True(t, s.Has("Producer"))
	assert.False(t, s.Has("Region"))
}

func TestWithExtra(t *testing.T) {
	kw := protect.WithExtra([]string{"Vintage", "price", " "})
	assert.Equal(t, len(protect.Keywords)+1, len(kw))
	assert.Equal(t, "vintage", kw[len(kw)-1])

	s := protect.ClassifyWith([]string{"Vintage", "Region"}, kw)
	assert.True(t, s.Has("Vintage"))
	assert.False(t, s.Has("Region"))
}
