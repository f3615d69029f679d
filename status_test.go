package bvar

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Describe(t *testing.T) {
	tests := []struct {
		name  string
		v     Variable
		quote bool
		want  string
	}{
		{"int", NewStatusIn(NewVarRegistry(), 12), true, "12"},
		{"float", NewStatusIn(NewVarRegistry(), 0.5), true, "0.5"},
		{"bool", NewStatusIn(NewVarRegistry(), true), true, "true"},
		{"string quoted", NewStatusIn(NewVarRegistry(), "up"), true, `"up"`},
		{"string raw", NewStatusIn(NewVarRegistry(), "up"), false, "up"},
		{"string escaped", NewStatusIn(NewVarRegistry(), "a\"b\n"), true, `"a\"b\n"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.True(t, tt.v.Describe(&buf, tt.quote))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestStatus_SetGet(t *testing.T) {
	s := NewStatusIn(NewVarRegistry(), "starting")
	assert.Equal(t, "starting", s.Get())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set("serving")
			_ = s.Get()
		}()
	}
	wg.Wait()
	assert.Equal(t, "serving", s.Get())
}

func TestNewStatus_UsesDefaultVars(t *testing.T) {
	s := NewStatus(1)
	require.NoError(t, s.Expose("bvar_test_status_default"))
	t.Cleanup(func() { s.Hide() })

	got, ok := DefaultVars().Find("bvar_test_status_default")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestQuoteJSON(t *testing.T) {
	assert.Equal(t, `""`, quoteJSON(""))
	assert.Equal(t, `"tab\there"`, quoteJSON("tab\there"))
}
