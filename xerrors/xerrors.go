// Package xerrors has helpers on top of the stdlib errors package.
package xerrors

import "errors"

// Tag returns err marked with tags: [errors.Is] and [errors.As] match any of the tags as well as
// anything in err's own chain, while the message is still err.Error().
//
// Tags are checked before the wrapped error, in the order given. Tagging a nil error returns nil
// and tagging with no tags returns err unchanged.
func Tag(err error, tags ...error) error {
	if err == nil || len(tags) == 0 {
		return err
	}
	return &tagged{err: err, tags: tags}
}

type tagged struct {
	err  error
	tags []error
}

func (t *tagged) Error() string {
	return t.err.Error()
}

func (t *tagged) Unwrap() error {
	return t.err
}

func (t *tagged) Is(target error) bool {
	for _, tag := range t.tags {
		if errors.Is(tag, target) {
			return true
		}
	}
	return false
}

func (t *tagged) As(target any) bool {
	for _, tag := range t.tags {
		if errors.As(tag, target) {
			return true
		}
	}
	return false
}
