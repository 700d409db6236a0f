package attest

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// Checker is a composable predicate used in assertions to validate actual values
// against expected conditions.
type Checker[T any] interface {
	// Check returns true if actual satisfies this checker's condition.
	Check(actual T) bool
	// Expected returns a human-readable description of what was expected.
	Expected() string
}

// isChecker validates exact value matching.
type isChecker[T comparable] struct {
	value T
}

// Is creates a checker that validates exact equality.
func Is[T comparable](value T) isChecker[T] {
	return isChecker[T]{value: value}
}

func (m isChecker[T]) Check(actual T) bool {
	return actual == m.value
}

func (m isChecker[T]) Expected() string {
	return fmt.Sprintf("%v", m.value)
}

// containsChecker validates that a string contains a substring.
type containsChecker struct {
	substring string
}

// Contains creates a checker that checks if actual contains the substring.
func Contains(substring string) containsChecker {
	return containsChecker{substring: substring}
}

func (m containsChecker) Check(actual string) bool {
	return strings.Contains(actual, m.substring)
}

func (m containsChecker) Expected() string {
	return fmt.Sprintf("containing %q", m.substring)
}

// oneOfChecker validates value is one of several valid values.
type oneOfChecker[T comparable] struct {
	values []T
}

// OneOf creates a checker that accepts any of the provided values.
func OneOf[T comparable](values ...T) oneOfChecker[T] {
	return oneOfChecker[T]{values: values}
}

func (m oneOfChecker[T]) Check(actual T) bool {
	return slices.Contains(m.values, actual)
}

func (m oneOfChecker[T]) Expected() string {
	return fmt.Sprintf("one of %v", m.values)
}

// notChecker negates another checker.
type notChecker[T comparable] struct {
	checker Checker[T]
}

// Not creates a checker that negates another checker.
func Not[T comparable](checker Checker[T]) notChecker[T] {
	return notChecker[T]{checker: checker}
}

func (m notChecker[T]) Check(actual T) bool {
	return !m.checker.Check(actual)
}

func (m notChecker[T]) Expected() string {
	return fmt.Sprintf("not %s", m.checker.Expected())
}

// sameSetChecker validates that a JSON array holds exactly the given strings, in any order.
type sameSetChecker struct {
	values []string
}

// SameSet creates a checker for JSON arrays that must contain exactly values.
func SameSet[T ~string](values ...T) sameSetChecker {
	set := make([]string, len(values))
	for i, v := range values {
		set[i] = string(v)
	}
	slices.Sort(set)

	return sameSetChecker{values: set}
}

func (m sameSetChecker) Check(actual string) bool {
	var got []string
	for _, item := range gjson.Parse(actual).Array() {
		got = append(got, item.String())
	}
	slices.Sort(got)

	return slices.Equal(got, m.values)
}

func (m sameSetChecker) Expected() string {
	return fmt.Sprintf("exactly [%s]", strings.Join(m.values, " "))
}

// checkAll returns true if all checkers pass for the given value.
// If onFail is provided, it's called with the first failing checker.
func checkAll[T any](value T, checkers []Checker[T], onFail func(Checker[T], T)) bool {
	for _, checker := range checkers {
		if !checker.Check(value) {
			if onFail != nil {
				onFail(checker, value)
			}

			return false
		}
	}

	return true
}

// JSONFieldChecker pairs a gjson path with a checker for that field.
type JSONFieldChecker struct {
	Path    string
	Checker Checker[string]
}

// checkAllJSON returns true if all JSON field checkers pass for the given JSON.
// Arrays and objects are checked against their raw JSON text.
// If onFail is provided, it's called with the first failing checker.
func checkAllJSON(json string, checkers []JSONFieldChecker, onFail func(JSONFieldChecker, string)) bool {
	for _, m := range checkers {
		result := gjson.Get(json, m.Path)

		value := result.String()
		if result.IsArray() || result.IsObject() {
			value = result.Raw
		}

		if !m.Checker.Check(value) {
			if onFail != nil {
				onFail(m, value)
			}

			return false
		}
	}

	return true
}
