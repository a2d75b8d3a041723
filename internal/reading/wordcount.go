package reading

// WordCounter reports the visible word count of the displayed document.
// Implementations live in the content package; tests use StaticWordCount.
type WordCounter interface {
	CountWords() (int, error)
}

// WordCounterFunc adapts a function to WordCounter
type WordCounterFunc func() (int, error)

// CountWords calls f
func (f WordCounterFunc) CountWords() (int, error) { return f() }

// StaticWordCount is a precomputed count, e.g. one measured by the client
type StaticWordCount int

// CountWords returns n, never negative
func (n StaticWordCount) CountWords() (int, error) {
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}
