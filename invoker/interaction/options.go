package interaction

type ReadOption func(*readOptions)

type readOptions struct {
	delims string

	intRange     bool
	intLo, intHi int64

	floatRange       bool
	floatLo, floatHi float64
}

func newReadOptions(opts []ReadOption) *readOptions {
	o := &readOptions{delims: defaultDelims}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Delim sets token delimiter bytes
func Delim(delims string) ReadOption {
	return func(o *readOptions) {
		o.delims = delims
	}
}

func IntRange(lo, hi int64) ReadOption {
	return func(o *readOptions) {
		o.intRange = true
		o.intLo, o.intHi = lo, hi
	}
}

func FloatRange(lo, hi float64) ReadOption {
	return func(o *readOptions) {
		o.floatRange = true
		o.floatLo, o.floatHi = lo, hi
	}
}
