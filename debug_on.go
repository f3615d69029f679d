//go:build debug

package bvar

const debugBuild = true
