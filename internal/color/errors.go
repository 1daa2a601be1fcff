package color

import "fmt"

// InvalidColorFormatError reports input that cannot be used as a shorthand
// hex color, either because it is not valid hex or because it decodes to an
// unsupported number of bytes.
type InvalidColorFormatError struct {
	Input string
}

func (e *InvalidColorFormatError) Error() string {
	return fmt.Sprintf("invalid color %q: expected 1, 2, 3 or 4 hex bytes", e.Input)
}

// WrongGroupCountError reports a multi-group update carrying the wrong number
// of colors.
type WrongGroupCountError struct {
	Expected int
	Got      int
}

func (e *WrongGroupCountError) Error() string {
	return fmt.Sprintf("wrong number of colors: expected 1 or %d, got %d", e.Expected, e.Got)
}

// IndexOutOfRangeError reports a partial update addressing a group that is
// not wired.
type IndexOutOfRangeError struct {
	Index  int
	Groups int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("group index %d out of range: %d groups are wired", e.Index, e.Groups)
}
