//go:build race

package bvar

const raceBuild = true
