package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		sender       string
		counterparty string
		want         Origin
	}{
		{"exact match", "Jane Doe", "Jane Doe", OriginCounterparty},
		{"trailing space on sender", "Jane Doe ", "Jane Doe", OriginCounterparty},
		{"padding on counterparty", "Jane Doe", "  Jane Doe\t", OriginCounterparty},
		{"empty sender", "", "Jane Doe", OriginSelf},
		{"different name", "John Smith", "Jane Doe", OriginSelf},
		{"case differs", "jane doe", "Jane Doe", OriginSelf},
		{"empty counterparty", "Jane Doe", "", OriginSelf},
		{"both empty", "", "", OriginSelf},
		{"whitespace counterparty", " ", " ", OriginSelf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sender, tt.counterparty))
		})
	}
}
