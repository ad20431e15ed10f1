package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceEventIDs(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		want []int64
	}{
		{
			name: "numbers as decoded from json",
			in:   []any{float64(1), float64(2)},
			want: []int64{1, 2},
		},
		{
			name: "numeric strings from legacy callers",
			in:   []any{"3", "4"},
			want: []int64{3, 4},
		},
		{
			name: "mixed with garbage dropped",
			in:   []any{float64(5), "six", "7", true, nil, float64(1.5)},
			want: []int64{5, 7},
		},
		{
			name: "empty",
			in:   nil,
			want: []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceEventIDs(tt.in))
		})
	}
}
