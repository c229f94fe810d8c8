package testutils

import "context"

// StaticExtractor returns the same raw model output for every turn.
type StaticExtractor string

func (s StaticExtractor) Extract(context.Context, string) string {
	return string(s)
}
