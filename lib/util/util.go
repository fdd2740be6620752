// Package util contains helper functions used around the code.
package util

// Index returns the position of s in ss, -1 if not found.
func Index[T comparable](ss []T, s T) int {
	for i := range ss {
		if ss[i] == s {
			return i
		}
	}

	return -1
}

// In returns true if s is found in ss, false otherwise
func In[T comparable](ss []T, s T) bool {
	return Index(ss, s) >= 0
}

// Remove returns ss without its first s, and whether s was found. The backing array of ss is left untouched.
func Remove[T comparable](ss []T, s T) ([]T, bool) {
	i := Index(ss, s)
	if i < 0 {
		return ss, false
	}

	return append(ss[:i:i], ss[i+1:]...), true
}
