package dedupe

type settings struct {
	maxSize int
}

// Option configures a Cache.
type Option func(*settings)

// WithMaxSize bounds the number of remembered keys. Zero or less keeps
// every key.
func WithMaxSize(maxSize int) Option {
	return func(s *settings) {
		s.maxSize = maxSize
	}
}
