package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPGX_ValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing address", Options{Username: "u", Database: "d", RetryAttempts: 1}},
		{"address without port", Options{Address: "localhost", Username: "u", Database: "d", RetryAttempts: 1}},
		{"missing database", Options{Address: "localhost:5432", Username: "u", RetryAttempts: 1}},
		{"zero attempts", Options{Address: "localhost:5432", Username: "u", Database: "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPGX(context.Background(), tt.opts)
			assert.Error(t, err)
			assert.Nil(t, pool)
		})
	}
}
