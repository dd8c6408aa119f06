package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// NormalizeMPN strips everything but letters and digits and uppercases the rest.
func NormalizeMPN(mpn string) string {
	return strings.ToUpper(nonWord.ReplaceAllString(mpn, ""))
}

// ChildSKU joins a parent SKU and a size.
func ChildSKU(parent, size string) string {
	return parent + "/" + size
}

// ParentSKU returns the part of sku before the size suffix.
func ParentSKU(sku string) string {
	parent, _, _ := strings.Cut(sku, "/")
	return parent
}

// BrandCodeOf returns the brand code segment of a non-ATS SKU ("BRD-TYP-0001/M" -> "BRD").
func BrandCodeOf(sku string) string {
	code, _, _ := strings.Cut(ParentSKU(sku), "-")
	return code
}

// BrandTypeOf returns the brand and type code segments ("BRD-TYP-0001/M" -> "BRD-TYP").
func BrandTypeOf(sku string) (string, bool) {
	parts := strings.Split(ParentSKU(sku), "-")
	if len(parts) < 3 {
		return "", false
	}
	return parts[0] + "-" + parts[1], true
}

// SKUNumber returns the numeric sequence of a non-ATS SKU ("BRD-TYP-0012/M" -> 12).
func SKUNumber(sku string) (int, error) {
	parts := strings.Split(ParentSKU(sku), "-")
	if len(parts) < 3 {
		return 0, fmt.Errorf("sku %q has no sequence number", sku)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("sku %q has no sequence number", sku)
	}
	return n, nil
}

// PadSKUNumber zero-pads n to width digits.
func PadSKUNumber(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
