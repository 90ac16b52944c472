package sync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cybertec-postgresql/submitq/internal/queue"
)

// ProductTypes are the categories offered to users. Submit does not enforce
// them.
var ProductTypes = []string{"Electronics", "Clothing", "Books", "Accessories"}

// ValidationError lists the fields that failed validation, in wire order
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s Invalid: %s", MessageInvalid, strings.Join(e.Fields, ", "))
}

// Validate checks that name and type are non-empty and that price and tax
// parse as floating point numbers. Values are checked exactly as entered:
// surrounding whitespace makes a number invalid but does not make a name
// empty. NaN, infinities and out of range
// values are numbers.
func Validate(fields queue.Fields) error {
	var invalid []string
	for _, name := range queue.FieldNames {
		value := fields[name]
		ok := value != ""
		if ok && (name == queue.FieldPrice || name == queue.FieldTax) {
			_, err := strconv.ParseFloat(value, 64)
			ok = err == nil || errors.Is(err, strconv.ErrRange)
		}
		if !ok {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Fields: invalid}
	}
	return nil
}
