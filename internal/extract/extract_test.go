package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"international with spaces", "call me at +91 9876543210", "+91 9876543210"},
		{"hyphenated", "my number is 555-867-5309x", "555-867-5309"},
		{"bare digits", "9876543210 works", "9876543210"},
		{"too few digits", "I ordered 12345 units", ""},
		{"short numeral in text", "meet in room 42 at 3", ""},
		{"no digits at all", "no phone here", ""},
		{"digits split by words", "call 123 then 456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.text))
		})
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "my email is john@bakery.com", "john@bakery.com"},
		{"with plus tag", "use jane+leads@agency.co.uk please", "jane+leads@agency.co.uk"},
		{"missing tld", "bad@address", ""},
		{"none", "no contact info", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.text))
		})
	}
}

func TestService(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"case insensitive", "I need help with seo for my shop", "SEO"},
		{"longest match wins", "interested in performance marketing", "Performance Marketing"},
		{"plain marketing", "we want marketing help", "Marketing"},
		{"web design", "looking for Web Design", "Web Design"},
		{"no service", "just saying hello", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Service(tt.text))
		})
	}
}

func TestScanMultipleEntities(t *testing.T) {
	ents := Scan("I'm after branding, reach me on +1 415 555 0101 or kim@studio.io")

	assert.Equal(t, "+1 415 555 0101", ents.Phone)
	assert.Equal(t, "kim@studio.io", ents.Email)
	assert.Equal(t, "Branding", ents.Service)
	assert.True(t, ents.Any())
}

func TestScanNothing(t *testing.T) {
	ents := Scan("Hi, I run a bakery")
	assert.False(t, ents.Any())
	assert.Empty(t, ents.Phone)
	assert.Empty(t, ents.Email)
	assert.Empty(t, ents.Service)
}
