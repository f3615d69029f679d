//go:build !debug

package bvar

const debugBuild = false
