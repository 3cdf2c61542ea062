package document

// SetSHA256Available swaps the availability probe for the duration of a test.
func SetSHA256Available(fn func() bool) (restore func()) {
	prev := sha256Available
	sha256Available = fn

	return func() { sha256Available = prev }
}
