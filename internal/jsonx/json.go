// Package jsonx wraps the JSON codec used for describe output.
// It uses sonic on amd64/arm64 and falls back to encoding/json elsewhere.
package jsonx

import (
	stdjson "encoding/json"
	"runtime"

	"github.com/bytedance/sonic"
)

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v interface{}) ([]byte, error)

	// Valid reports whether data is a valid JSON encoding.
	Valid func(data []byte) bool

	usingSonic bool
)

func init() {
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		Marshal = sonic.ConfigDefault.Marshal
		Valid = sonic.ConfigDefault.Valid
		usingSonic = true
		return
	}
	Marshal = stdjson.Marshal
	Valid = stdjson.Valid
}

// IsUsingSonic reports whether sonic is backing Marshal.
func IsUsingSonic() bool {
	return usingSonic
}
